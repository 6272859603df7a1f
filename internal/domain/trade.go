package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TradeKind is the side of a spot trade.
type TradeKind string

const (
	TradeBuy  TradeKind = "BUY"
	TradeSell TradeKind = "SELL"
)

// ParseTradeKind accepts "BUY"/"SELL" in any case.
func ParseTradeKind(s string) (TradeKind, error) {
	switch TradeKind(strings.ToUpper(s)) {
	case TradeBuy:
		return TradeBuy, nil
	case TradeSell:
		return TradeSell, nil
	default:
		return "", fmt.Errorf("unknown trade action %q", s)
	}
}

// TradeIntent is a user's request to buy or sell. ID is assigned by the coordinator
// when the intent is accepted and is never sent to the server.
type TradeIntent struct {
	ID       string
	Kind     TradeKind
	Quantity int
}

// Validate checks kind and quantity.
func (i TradeIntent) Validate() error {
	if i.Kind != TradeBuy && i.Kind != TradeSell {
		return fmt.Errorf("%w: kind %q", ErrInvalidIntent, i.Kind)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, i.Quantity)
	}
	return nil
}

// FailureReason classifies a failed trade.
type FailureReason string

const (
	FailureRejected       FailureReason = "REJECTED"
	FailureTimeout        FailureReason = "TIMEOUT"
	FailureConnectionLost FailureReason = "CONNECTION_LOST"
)

// TradeOutcome is exactly one of *TradeSuccess or *TradeFailure.
type TradeOutcome interface {
	TradeIntent() TradeIntent
	isTradeOutcome()
}

// TradeSuccess carries the server-confirmed post-trade balances.
type TradeSuccess struct {
	Intent         TradeIntent
	Action         TradeKind
	Quantity       int
	ExecutionPrice decimal.Decimal
	NewCash        decimal.Decimal
	NewStocks      int
}

func (s *TradeSuccess) TradeIntent() TradeIntent { return s.Intent }
func (*TradeSuccess) isTradeOutcome()            {}

// TradeFailure leaves personal assets untouched.
type TradeFailure struct {
	Intent  TradeIntent
	Reason  FailureReason
	Message string // server message for FailureRejected
}

func (f *TradeFailure) TradeIntent() TradeIntent { return f.Intent }
func (*TradeFailure) isTradeOutcome()            {}

// Error lets a failure be shown through the same path as local errors.
func (f *TradeFailure) Error() string {
	switch f.Reason {
	case FailureRejected:
		return "trade rejected: " + f.Message
	case FailureTimeout:
		return "trade rejected: no response from server"
	case FailureConnectionLost:
		return "trade rejected: connection lost"
	default:
		return "trade rejected: " + string(f.Reason)
	}
}
