package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameClock_Validate(t *testing.T) {
	tests := []struct {
		name    string
		clock   GameClock
		wantErr bool
	}{
		{"not started", GameClock{CurrentDay: 0, TotalDays: 120}, false},
		{"running", GameClock{CurrentDay: 5, IsRunning: true, CountdownSeconds: 10, TotalDays: 120}, false},
		{"last day", GameClock{CurrentDay: 120, TotalDays: 120}, false},
		{"negative day", GameClock{CurrentDay: -1, TotalDays: 120}, true},
		{"negative countdown", GameClock{CurrentDay: 1, CountdownSeconds: -3, TotalDays: 120}, true},
		{"zero total", GameClock{CurrentDay: 0, TotalDays: 0}, true},
		{"past end", GameClock{CurrentDay: 121, TotalDays: 120}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.clock.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPriceHistory_Validate(t *testing.T) {
	point := func(day int, price string) PricePoint {
		return PricePoint{Day: day, Price: decimal.RequireFromString(price), Trend: "盤整"}
	}

	t.Run("empty is valid", func(t *testing.T) {
		assert.NoError(t, PriceHistory(nil).Validate())
	})

	t.Run("dense from day one", func(t *testing.T) {
		h := PriceHistory{point(1, "50"), point(2, "51.5"), point(3, "49")}
		require.NoError(t, h.Validate())
		assert.Equal(t, 3, h.LastDay())
	})

	t.Run("gap", func(t *testing.T) {
		h := PriceHistory{point(1, "50"), point(3, "49")}
		assert.Error(t, h.Validate())
	})

	t.Run("starts at day two", func(t *testing.T) {
		assert.Error(t, PriceHistory{point(2, "50")}.Validate())
	})

	t.Run("negative price", func(t *testing.T) {
		assert.Error(t, PriceHistory{point(1, "-0.01")}.Validate())
	})

	t.Run("clone does not alias", func(t *testing.T) {
		h := PriceHistory{point(1, "50")}
		c := h.Clone()
		c[0].Day = 9
		assert.Equal(t, 1, h[0].Day)
	})
}

func TestPersonalAssets(t *testing.T) {
	a := PersonalAssets{Cash: decimal.RequireFromString("847.70"), Stocks: 13, Debt: decimal.NewFromInt(100)}
	require.NoError(t, a.Validate())

	b := PersonalAssets{Cash: decimal.RequireFromString("847.7"), Stocks: 13, Debt: decimal.RequireFromString("100.00")}
	assert.True(t, a.Equal(b), "decimal scale must not matter")

	// 847.70 + 13*10 - 100
	assert.True(t, a.NetWorth(decimal.NewFromInt(10)).Equal(decimal.RequireFromString("877.70")))

	assert.Error(t, PersonalAssets{Stocks: -1}.Validate())
	assert.Error(t, PersonalAssets{Debt: decimal.NewFromInt(-1)}.Validate())
}

func TestTradeIntent_Validate(t *testing.T) {
	assert.NoError(t, TradeIntent{Kind: TradeBuy, Quantity: 3}.Validate())
	assert.ErrorIs(t, TradeIntent{Kind: TradeSell, Quantity: 0}.Validate(), ErrInvalidQuantity)
	assert.ErrorIs(t, TradeIntent{Kind: "HOLD", Quantity: 1}.Validate(), ErrInvalidIntent)

	kind, err := ParseTradeKind("sell")
	require.NoError(t, err)
	assert.Equal(t, TradeSell, kind)

	_, err = ParseTradeKind("short")
	assert.Error(t, err)
}

func TestNewTradeRecord(t *testing.T) {
	intent := TradeIntent{ID: "abc", Kind: TradeBuy, Quantity: 3}

	rec := NewTradeRecord("s1", &TradeSuccess{
		Intent:         intent,
		Action:         TradeBuy,
		Quantity:       3,
		ExecutionPrice: decimal.RequireFromString("52.10"),
		NewCash:        decimal.RequireFromString("847.70"),
		NewStocks:      13,
	}, 5, 2)
	assert.Equal(t, ResultSuccess, rec.Result)
	assert.Equal(t, "abc", rec.IntentID)
	assert.Equal(t, 13, rec.NewStocks)
	assert.Equal(t, uint64(2), rec.Epoch)

	rec = NewTradeRecord("s1", &TradeFailure{Intent: intent, Reason: FailureRejected, Message: "no cash"}, 5, 2)
	assert.Equal(t, "REJECTED", rec.Result)
	assert.Equal(t, "no cash", rec.Message)
}
