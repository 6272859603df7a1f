// Package event defines the messages exchanged with the game server and the
// validated decode step that turns raw frames into one closed set of variants.
package event

import (
	"market_sync/internal/domain"

	"github.com/shopspring/decimal"
)

// Wire event names.
const (
	NameFullSync     = "FULL_SYNC_STATE"
	NameClockTick    = "GAME_STATE_UPDATE"
	NamePriceAdvance = "PRICE_UPDATE"
	NameTradeSuccess = "TRADE_SUCCESS"
	NameTradeFailure = "TRADE_ERROR"

	NameBuy  = "BUY_STOCK"
	NameSell = "SELL_STOCK"
)

// Inbound is one decoded server event. The set of implementations is closed.
type Inbound interface {
	Name() string
	isInbound()
}

// FullSync restates all synchronized state.
type FullSync struct {
	Clock        domain.GameClock
	CurrentPrice decimal.Decimal
	History      domain.PriceHistory
	Personal     domain.PersonalAssets
}

// ClockTick replaces the game clock.
type ClockTick struct {
	Clock domain.GameClock
}

// PriceAdvance carries the price for Day and the server's full series up to it.
type PriceAdvance struct {
	Day     int
	Price   decimal.Decimal
	History domain.PriceHistory
}

// TradeSucceeded confirms the pending trade with post-trade balances.
type TradeSucceeded struct {
	Action    domain.TradeKind
	Amount    int
	Price     decimal.Decimal
	NewCash   decimal.Decimal
	NewStocks int
}

// TradeFailed rejects the pending trade.
type TradeFailed struct {
	Message string
}

func (*FullSync) Name() string       { return NameFullSync }
func (*ClockTick) Name() string      { return NameClockTick }
func (*PriceAdvance) Name() string   { return NamePriceAdvance }
func (*TradeSucceeded) Name() string { return NameTradeSuccess }
func (*TradeFailed) Name() string    { return NameTradeFailure }

func (*FullSync) isInbound()       {}
func (*ClockTick) isInbound()      {}
func (*PriceAdvance) isInbound()   {}
func (*TradeSucceeded) isInbound() {}
func (*TradeFailed) isInbound()    {}

// Outbound is a client request.
type Outbound struct {
	Name     string
	Quantity int
}

// SubmitTrade builds the outbound event for an intent.
func SubmitTrade(intent domain.TradeIntent) Outbound {
	name := NameBuy
	if intent.Kind == domain.TradeSell {
		name = NameSell
	}
	return Outbound{Name: name, Quantity: intent.Quantity}
}
