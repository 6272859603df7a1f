package service

import (
	"sync"
	"testing"

	"market_sync/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(prices ...string) domain.PriceHistory {
	h := make(domain.PriceHistory, len(prices))
	for i, p := range prices {
		h[i] = domain.PricePoint{Day: i + 1, Price: decimal.RequireFromString(p)}
	}
	return h
}

func snapshot(day int, cash string, prices ...string) Snapshot {
	return Snapshot{
		Clock:        domain.GameClock{CurrentDay: day, IsRunning: true, CountdownSeconds: 10, TotalDays: 120},
		CurrentPrice: decimal.RequireFromString(prices[len(prices)-1]),
		History:      history(prices...),
		Personal:     domain.PersonalAssets{Cash: decimal.RequireFromString(cash), Stocks: 10},
	}
}

func TestMarketStore_StartsEmptyAndUnsynced(t *testing.T) {
	s := NewMarketStore()
	v := s.View()

	assert.True(t, v.Unsynced)
	assert.Zero(t, v.Epoch)
	assert.Empty(t, v.History)
	assert.Equal(t, domain.GameClock{}, v.Clock)
}

func TestMarketStore_ReplaceAll(t *testing.T) {
	s := NewMarketStore()

	epoch, err := s.ReplaceAll(snapshot(3, "1000", "50", "51", "52"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)

	v := s.View()
	assert.False(t, v.Unsynced)
	assert.Equal(t, 3, v.Clock.CurrentDay)
	assert.Len(t, v.History, 3)

	// A new game: day goes back and the history shrinks.
	epoch, err = s.ReplaceAll(snapshot(1, "500", "20"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)

	v = s.View()
	assert.Equal(t, 1, v.Clock.CurrentDay)
	assert.Len(t, v.History, 1)
	assert.True(t, v.Personal.Cash.Equal(decimal.NewFromInt(500)))
}

func TestMarketStore_ReplaceAllRejectsInvalid(t *testing.T) {
	s := NewMarketStore()
	bad := snapshot(2, "1", "1", "2")
	bad.History[1].Day = 5

	_, err := s.ReplaceAll(bad)
	assert.Error(t, err)
	assert.True(t, s.Unsynced())
	assert.Zero(t, s.Epoch())
}

func TestMarketStore_SetClockMonotonic(t *testing.T) {
	s := NewMarketStore()
	_, err := s.ReplaceAll(snapshot(5, "100", "1", "2", "3", "4", "5"))
	require.NoError(t, err)

	require.NoError(t, s.SetClock(domain.GameClock{CurrentDay: 5, CountdownSeconds: 3, TotalDays: 120}))
	require.NoError(t, s.SetClock(domain.GameClock{CurrentDay: 6, TotalDays: 120}))

	err = s.SetClock(domain.GameClock{CurrentDay: 4, TotalDays: 120})
	assert.ErrorIs(t, err, ErrDayRegression)
	assert.Equal(t, 6, s.Clock().CurrentDay)
}

func TestMarketStore_AdvancePrice(t *testing.T) {
	s := NewMarketStore()
	_, err := s.ReplaceAll(snapshot(2, "100", "10", "11"))
	require.NoError(t, err)

	require.NoError(t, s.AdvancePrice(3, decimal.NewFromInt(12), history("10", "11", "12")))
	v := s.View()
	assert.Equal(t, 3, v.Clock.CurrentDay)
	assert.Len(t, v.History, 3)
	assert.True(t, v.CurrentPrice.Equal(decimal.NewFromInt(12)))

	err = s.AdvancePrice(2, decimal.NewFromInt(99), history("10", "99"))
	assert.ErrorIs(t, err, ErrDayRegression)
	assert.Len(t, s.View().History, 3)

	err = s.AdvancePrice(5, decimal.NewFromInt(14), history("10", "11", "12", "13", "14"))
	assert.ErrorIs(t, err, ErrDayGap)
	assert.Equal(t, 3, s.Clock().CurrentDay)

	// re-delivery of the current day is accepted
	require.NoError(t, s.AdvancePrice(3, decimal.NewFromInt(12), history("10", "11", "12")))
}

func TestMarketStore_ViewIsACopy(t *testing.T) {
	s := NewMarketStore()
	_, err := s.ReplaceAll(snapshot(1, "100", "10"))
	require.NoError(t, err)

	v := s.View()
	v.History[0].Price = decimal.NewFromInt(999)

	assert.True(t, s.View().History[0].Price.Equal(decimal.NewFromInt(10)))
}

func TestMarketStore_ResetKeepsEpochCounting(t *testing.T) {
	s := NewMarketStore()
	_, err := s.ReplaceAll(snapshot(1, "100", "10"))
	require.NoError(t, err)

	s.Reset()
	v := s.View()
	assert.True(t, v.Unsynced)
	assert.Empty(t, v.History)
	assert.True(t, v.Personal.Cash.IsZero())
	assert.Equal(t, uint64(1), v.Epoch)

	epoch, err := s.ReplaceAll(snapshot(1, "100", "10"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)
}

func TestMarketView_EstimateCost(t *testing.T) {
	v := MarketView{CurrentPrice: decimal.RequireFromString("52.10")}
	assert.True(t, v.EstimateCost(3).Equal(decimal.RequireFromString("156.30")))
}

func TestMarketStore_ConcurrentReaders(t *testing.T) {
	s := NewMarketStore()
	_, err := s.ReplaceAll(snapshot(1, "100", "10"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := s.View()
				assert.NotZero(t, v.Clock.TotalDays)
			}
		}()
	}
	for day := 2; day <= 50; day++ {
		prices := make([]string, day)
		for i := range prices {
			prices[i] = "10"
		}
		require.NoError(t, s.AdvancePrice(day, decimal.NewFromInt(10), history(prices...)))
	}
	wg.Wait()
	assert.Equal(t, 50, s.Clock().CurrentDay)
}
