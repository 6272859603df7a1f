package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PricePoint is the closing price of one trading day plus the news that moved it.
type PricePoint struct {
	Day   int             `json:"day"`
	Price decimal.Decimal `json:"price"`
	Title *string         `json:"title"`
	Body  *string         `json:"news"`
	Trend string          `json:"effectiveTrend"`
}

// PriceHistory is ordered by day, dense from day 1.
type PriceHistory []PricePoint

// Validate checks that the history is dense (history[i].Day == i+1) and prices are non-negative.
func (h PriceHistory) Validate() error {
	for i, p := range h {
		if p.Day != i+1 {
			return fmt.Errorf("history[%d].day = %d, want %d", i, p.Day, i+1)
		}
		if p.Price.IsNegative() {
			return fmt.Errorf("history[%d].price is negative: %s", i, p.Price)
		}
	}
	return nil
}

// LastDay returns the day of the newest point, 0 when empty.
func (h PriceHistory) LastDay() int {
	if len(h) == 0 {
		return 0
	}
	return h[len(h)-1].Day
}

// Last returns the newest point.
func (h PriceHistory) Last() (PricePoint, bool) {
	if len(h) == 0 {
		return PricePoint{}, false
	}
	return h[len(h)-1], true
}

// Clone returns a copy that shares no backing array with h.
func (h PriceHistory) Clone() PriceHistory {
	if h == nil {
		return nil
	}
	out := make(PriceHistory, len(h))
	copy(out, h)
	return out
}
