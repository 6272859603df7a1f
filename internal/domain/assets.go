package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PersonalAssets is the participant's private account state.
// It only ever changes to values the server confirmed.
type PersonalAssets struct {
	Cash   decimal.Decimal `json:"cash"`
	Stocks int             `json:"stocks"`
	Debt   decimal.Decimal `json:"debt"`
}

// Validate checks the account invariants. Cash may go negative on the server side (margin),
// stocks and debt may not.
func (a PersonalAssets) Validate() error {
	if a.Stocks < 0 {
		return fmt.Errorf("stocks must be >= 0, got %d", a.Stocks)
	}
	if a.Debt.IsNegative() {
		return fmt.Errorf("debt must be >= 0, got %s", a.Debt)
	}
	return nil
}

// Equal compares by value; decimal fields are compared numerically.
func (a PersonalAssets) Equal(b PersonalAssets) bool {
	return a.Cash.Equal(b.Cash) && a.Stocks == b.Stocks && a.Debt.Equal(b.Debt)
}

// NetWorth values the position at price: cash + stocks*price - debt.
func (a PersonalAssets) NetWorth(price decimal.Decimal) decimal.Decimal {
	return a.Cash.Add(price.Mul(decimal.NewFromInt(int64(a.Stocks)))).Sub(a.Debt)
}
