package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"market_sync/internal/domain"

	"github.com/shopspring/decimal"
)

// DecodeError is returned for frames that cannot become an Inbound value.
type DecodeError struct {
	Event string // wire name, empty if the envelope itself was bad
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return "decode frame: " + e.Err.Error()
	}
	return "decode " + e.Event + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrUnknownEvent is wrapped by DecodeError for event names outside the protocol.
var ErrUnknownEvent = errors.New("unknown event")

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses one frame into its variant and validates it.
func Decode(frame []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.Event == "" {
		return nil, &DecodeError{Err: errors.New("missing event name")}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &DecodeError{Event: env.Event, Err: errors.New("missing data")}
	}

	var (
		ev  Inbound
		err error
	)
	switch env.Event {
	case NameFullSync:
		ev, err = decodeFullSync(env.Data)
	case NameClockTick:
		ev, err = decodeClockTick(env.Data)
	case NamePriceAdvance:
		ev, err = decodePriceAdvance(env.Data)
	case NameTradeSuccess:
		ev, err = decodeTradeSuccess(env.Data)
	case NameTradeFailure:
		ev, err = decodeTradeFailure(env.Data)
	default:
		err = ErrUnknownEvent
	}
	if err != nil {
		return nil, &DecodeError{Event: env.Event, Err: err}
	}
	return ev, nil
}

// Encode renders an outbound event as a frame.
func Encode(o Outbound) ([]byte, error) {
	if o.Name != NameBuy && o.Name != NameSell {
		return nil, fmt.Errorf("encode: unknown outbound event %q", o.Name)
	}
	if o.Quantity <= 0 {
		return nil, fmt.Errorf("encode %s: %w", o.Name, domain.ErrInvalidQuantity)
	}
	data, err := json.Marshal(struct {
		Quantity int `json:"quantity"`
	}{o.Quantity})
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: o.Name, Data: data})
}

type wireClock struct {
	CurrentDay    *int  `json:"currentDay"`
	IsGameStarted *bool `json:"isGameStarted"`
	Countdown     *int  `json:"countdown"`
	TotalDays     *int  `json:"totalDays"`
}

func (w *wireClock) toDomain() (domain.GameClock, error) {
	if w == nil {
		return domain.GameClock{}, errors.New("missing clock")
	}
	if w.CurrentDay == nil || w.TotalDays == nil {
		return domain.GameClock{}, errors.New("clock: currentDay and totalDays are required")
	}
	c := domain.GameClock{CurrentDay: *w.CurrentDay, TotalDays: *w.TotalDays}
	if w.IsGameStarted != nil {
		c.IsRunning = *w.IsGameStarted
	}
	if w.Countdown != nil {
		c.CountdownSeconds = *w.Countdown
	}
	if err := c.Validate(); err != nil {
		return domain.GameClock{}, fmt.Errorf("clock: %w", err)
	}
	return c, nil
}

type wirePoint struct {
	Day            *int             `json:"day"`
	Price          *decimal.Decimal `json:"price"`
	Title          *string          `json:"title"`
	News           *string          `json:"news"`
	EffectiveTrend string           `json:"effectiveTrend"`
}

func toHistory(points []wirePoint) (domain.PriceHistory, error) {
	h := make(domain.PriceHistory, 0, len(points))
	for i, p := range points {
		if p.Day == nil || p.Price == nil {
			return nil, fmt.Errorf("history[%d]: day and price are required", i)
		}
		h = append(h, domain.PricePoint{
			Day:   *p.Day,
			Price: *p.Price,
			Title: p.Title,
			Body:  p.News,
			Trend: p.EffectiveTrend,
		})
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

type wireAssets struct {
	Cash   *decimal.Decimal `json:"cash"`
	Stocks *int             `json:"stocks"`
	Debt   *decimal.Decimal `json:"debt"`
}

func (w *wireAssets) toDomain() (domain.PersonalAssets, error) {
	if w == nil {
		return domain.PersonalAssets{}, errors.New("missing personal")
	}
	if w.Cash == nil || w.Stocks == nil {
		return domain.PersonalAssets{}, errors.New("personal: cash and stocks are required")
	}
	a := domain.PersonalAssets{Cash: *w.Cash, Stocks: *w.Stocks, Debt: decimal.Zero}
	if w.Debt != nil {
		a.Debt = *w.Debt
	}
	if err := a.Validate(); err != nil {
		return domain.PersonalAssets{}, fmt.Errorf("personal: %w", err)
	}
	return a, nil
}

func decodeFullSync(data json.RawMessage) (*FullSync, error) {
	var w struct {
		GameStatus *wireClock `json:"gameStatus"`
		Clock      *wireClock `json:"clock"`
		Price      *struct {
			Current *decimal.Decimal `json:"current"`
			History []wirePoint      `json:"history"`
		} `json:"price"`
		Personal *wireAssets `json:"personal"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	wc := w.GameStatus
	if wc == nil {
		wc = w.Clock
	}
	clock, err := wc.toDomain()
	if err != nil {
		return nil, err
	}
	if w.Price == nil {
		return nil, errors.New("missing price")
	}
	history, err := toHistory(w.Price.History)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	personal, err := w.Personal.toDomain()
	if err != nil {
		return nil, err
	}

	current := decimal.Zero
	if w.Price.Current != nil {
		current = *w.Price.Current
	} else if last, ok := history.Last(); ok {
		current = last.Price
	}
	if current.IsNegative() {
		return nil, fmt.Errorf("price: current is negative: %s", current)
	}

	return &FullSync{Clock: clock, CurrentPrice: current, History: history, Personal: personal}, nil
}

func decodeClockTick(data json.RawMessage) (*ClockTick, error) {
	var w wireClock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	clock, err := w.toDomain()
	if err != nil {
		return nil, err
	}
	return &ClockTick{Clock: clock}, nil
}

func decodePriceAdvance(data json.RawMessage) (*PriceAdvance, error) {
	var w struct {
		Day     *int             `json:"day"`
		Price   *decimal.Decimal `json:"price"`
		History []wirePoint      `json:"history"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.Day == nil || w.Price == nil {
		return nil, errors.New("day and price are required")
	}
	if *w.Day < 1 {
		return nil, fmt.Errorf("day must be >= 1, got %d", *w.Day)
	}
	if w.Price.IsNegative() {
		return nil, fmt.Errorf("price is negative: %s", *w.Price)
	}
	history, err := toHistory(w.History)
	if err != nil {
		return nil, err
	}
	if history.LastDay() != *w.Day {
		return nil, fmt.Errorf("history ends at day %d, event is for day %d", history.LastDay(), *w.Day)
	}
	return &PriceAdvance{Day: *w.Day, Price: *w.Price, History: history}, nil
}

func decodeTradeSuccess(data json.RawMessage) (*TradeSucceeded, error) {
	var w struct {
		Action    string           `json:"action"`
		Amount    *int             `json:"amount"`
		Price     *decimal.Decimal `json:"price"`
		NewCash   *decimal.Decimal `json:"newCash"`
		NewStocks *int             `json:"newStocks"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	action, err := domain.ParseTradeKind(w.Action)
	if err != nil {
		return nil, err
	}
	if w.Amount == nil || w.Price == nil || w.NewCash == nil || w.NewStocks == nil {
		return nil, errors.New("amount, price, newCash and newStocks are required")
	}
	if *w.Amount <= 0 {
		return nil, fmt.Errorf("amount must be > 0, got %d", *w.Amount)
	}
	if *w.NewStocks < 0 {
		return nil, fmt.Errorf("newStocks must be >= 0, got %d", *w.NewStocks)
	}
	return &TradeSucceeded{
		Action:    action,
		Amount:    *w.Amount,
		Price:     *w.Price,
		NewCash:   *w.NewCash,
		NewStocks: *w.NewStocks,
	}, nil
}

func decodeTradeFailure(data json.RawMessage) (*TradeFailed, error) {
	var w struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.Message == "" {
		w.Message = "unknown error"
	}
	return &TradeFailed{Message: w.Message}, nil
}
