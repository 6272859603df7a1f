package service

import (
	"errors"
	"fmt"
	"sync"

	"market_sync/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	// ErrDayRegression is returned when an incremental update would move the day backwards.
	ErrDayRegression = errors.New("current day would decrease")

	// ErrDayGap is returned when a price advance skips one or more days.
	ErrDayGap = errors.New("price advance skips a day")
)

// MarketView is a point-in-time copy of the store. Safe to keep and read from any goroutine.
type MarketView struct {
	Clock        domain.GameClock
	CurrentPrice decimal.Decimal
	History      domain.PriceHistory
	Personal     domain.PersonalAssets
	Epoch        uint64
	Unsynced     bool
}

// EstimateCost is the notional of a trade at the current price.
func (v MarketView) EstimateCost(quantity int) decimal.Decimal {
	return v.CurrentPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Snapshot is the full restatement accepted by ReplaceAll.
type Snapshot struct {
	Clock        domain.GameClock
	CurrentPrice decimal.Decimal
	History      domain.PriceHistory
	Personal     domain.PersonalAssets
}

// MarketStore holds the client's single view of the game.
// There is one writer (the engine loop); readers use View.
type MarketStore struct {
	mu sync.RWMutex

	clock        domain.GameClock
	currentPrice decimal.Decimal
	history      domain.PriceHistory
	personal     domain.PersonalAssets

	epoch    uint64
	unsynced bool
}

// NewMarketStore creates an empty, unsynced store.
func NewMarketStore() *MarketStore {
	return &MarketStore{unsynced: true}
}

// ReplaceAll installs a full snapshot, bumps the epoch and clears unsynced.
// It is the only mutation allowed to move the day backwards or shrink the history.
func (s *MarketStore) ReplaceAll(snap Snapshot) (uint64, error) {
	if err := snap.Clock.Validate(); err != nil {
		return 0, fmt.Errorf("snapshot clock: %w", err)
	}
	if err := snap.History.Validate(); err != nil {
		return 0, fmt.Errorf("snapshot history: %w", err)
	}
	if err := snap.Personal.Validate(); err != nil {
		return 0, fmt.Errorf("snapshot personal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock = snap.Clock
	s.currentPrice = snap.CurrentPrice
	s.history = snap.History.Clone()
	s.personal = snap.Personal
	s.epoch++
	s.unsynced = false
	return s.epoch, nil
}

// SetClock replaces the clock. The day may not decrease.
func (s *MarketStore) SetClock(c domain.GameClock) error {
	if err := c.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CurrentDay < s.clock.CurrentDay {
		return fmt.Errorf("%w: %d -> %d", ErrDayRegression, s.clock.CurrentDay, c.CurrentDay)
	}
	s.clock = c
	return nil
}

// AdvancePrice replaces the history with the server's series for day and moves the day forward
// if day is ahead of the clock. Only the current day (re-delivery) and the next day are accepted.
func (s *MarketStore) AdvancePrice(day int, price decimal.Decimal, history domain.PriceHistory) error {
	if err := history.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if day < s.clock.CurrentDay {
		return fmt.Errorf("%w: %d -> %d", ErrDayRegression, s.clock.CurrentDay, day)
	}
	if day > s.clock.CurrentDay+1 {
		return fmt.Errorf("%w: %d -> %d", ErrDayGap, s.clock.CurrentDay, day)
	}
	if s.clock.TotalDays > 0 && day > s.clock.TotalDays {
		return fmt.Errorf("day %d exceeds totalDays %d", day, s.clock.TotalDays)
	}
	s.history = history.Clone()
	s.currentPrice = price
	if day > s.clock.CurrentDay {
		s.clock.CurrentDay = day
	}
	return nil
}

// SetPersonal replaces the personal assets with server-confirmed values.
func (s *MarketStore) SetPersonal(a domain.PersonalAssets) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.personal = a
	return nil
}

// MarkUnsynced flags the data as possibly stale until the next snapshot.
func (s *MarketStore) MarkUnsynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsynced = true
}

// Reset discards all game data. The epoch counter keeps counting.
func (s *MarketStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock = domain.GameClock{}
	s.currentPrice = decimal.Zero
	s.history = nil
	s.personal = domain.PersonalAssets{}
	s.unsynced = true
}

// View returns a copy of the current state.
func (s *MarketStore) View() MarketView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return MarketView{
		Clock:        s.clock,
		CurrentPrice: s.currentPrice,
		History:      s.history.Clone(),
		Personal:     s.personal,
		Epoch:        s.epoch,
		Unsynced:     s.unsynced,
	}
}

// Clock returns the current clock.
func (s *MarketStore) Clock() domain.GameClock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// Personal returns the current personal assets.
func (s *MarketStore) Personal() domain.PersonalAssets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.personal
}

// Epoch returns the number of snapshots accepted so far.
func (s *MarketStore) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Unsynced reports whether the data may be stale.
func (s *MarketStore) Unsynced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsynced
}
