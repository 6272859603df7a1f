// Package trade turns trade intents into exactly one outbound request and exactly one outcome,
// with at most one request in flight.
package trade

import (
	"fmt"
	"log/slog"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/event"

	"github.com/google/uuid"
)

// DefaultTimeout bounds how long a request may stay pending.
const DefaultTimeout = 10 * time.Second

// State of the coordinator.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "PENDING"
	}
	return "IDLE"
}

// Timer is the part of *time.Timer the coordinator needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once adapted by RealAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// AssetWriter is where confirmed balances go.
type AssetWriter interface {
	Personal() domain.PersonalAssets
	SetPersonal(domain.PersonalAssets) error
}

// Guard carries the session facts Submit checks.
type Guard struct {
	Connected   bool
	GameRunning bool
}

// Config configures a Coordinator.
type Config struct {
	Timeout      time.Duration
	OrphanWindow time.Duration // how long a timed-out request may still be answered
	AfterFunc    AfterFunc
	Now          func() time.Time
	// OnTimeout is called from the timer goroutine. It must hand the intent ID back to the
	// owning loop, which then calls Coordinator.Timeout.
	OnTimeout func(intentID string)
	Logger    *slog.Logger
}

type pendingTrade struct {
	intent domain.TradeIntent
	sentAt time.Time
	timer  Timer
}

// Coordinator is the single-flight trade state machine: Idle -> Pending -> Idle.
// It is not safe for concurrent use; all calls come from the engine loop.
type Coordinator struct {
	cfg     Config
	store   AssetWriter
	logger  *slog.Logger
	pending *pendingTrade
	// lateUntil is set while a timed-out request may still be answered. No new request is
	// sent before then, so a result can never be credited to the wrong intent.
	lateUntil time.Time
}

// NewCoordinator creates an idle coordinator writing confirmed balances to store.
func NewCoordinator(store AssetWriter, cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OrphanWindow <= 0 {
		cfg.OrphanWindow = 2 * cfg.Timeout
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = RealAfterFunc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		logger: cfg.Logger.With("module", "trade"),
	}
}

// State returns Idle or Pending.
func (c *Coordinator) State() State {
	if c.pending != nil {
		return Pending
	}
	return Idle
}

// PendingIntent returns the in-flight intent, if any.
func (c *Coordinator) PendingIntent() (domain.TradeIntent, bool) {
	if c.pending == nil {
		return domain.TradeIntent{}, false
	}
	return c.pending.intent, true
}

// Submit sends intent and moves to Pending. Local rejections leave the state unchanged.
// While a timed-out request may still be answered, Submit reports ErrAlreadyPending.
func (c *Coordinator) Submit(intent domain.TradeIntent, g Guard, send func(event.Outbound) error) (domain.TradeIntent, error) {
	if c.pending != nil || c.awaitingLate() {
		return domain.TradeIntent{}, domain.ErrAlreadyPending
	}
	if !g.Connected {
		return domain.TradeIntent{}, domain.ErrSessionUnavailable
	}
	if err := intent.Validate(); err != nil {
		return domain.TradeIntent{}, err
	}
	if !g.GameRunning {
		return domain.TradeIntent{}, domain.ErrGameNotRunning
	}

	intent.ID = uuid.NewString()
	if err := send(event.SubmitTrade(intent)); err != nil {
		return domain.TradeIntent{}, fmt.Errorf("%w: %v", domain.ErrSessionUnavailable, err)
	}

	id := intent.ID
	c.pending = &pendingTrade{
		intent: intent,
		sentAt: c.cfg.Now(),
		timer: c.cfg.AfterFunc(c.cfg.Timeout, func() {
			if c.cfg.OnTimeout != nil {
				c.cfg.OnTimeout(id)
			}
		}),
	}

	c.logger.Info("Trade submitted",
		slog.String("intent", id),
		slog.String("kind", string(intent.Kind)),
		slog.Int("quantity", intent.Quantity),
	)
	return intent, nil
}

// HandleSuccess resolves the pending trade with a server confirmation.
// ok is false when the event was absorbed as a late answer or had nothing to answer.
func (c *Coordinator) HandleSuccess(ev *event.TradeSucceeded) (domain.TradeOutcome, bool) {
	if !c.claim(ev.Name()) {
		return nil, false
	}
	p := c.pending
	if ev.Action != p.intent.Kind || ev.Amount != p.intent.Quantity {
		c.logger.Warn("Trade confirmation does not match pending intent",
			slog.String("intent", p.intent.ID),
			slog.String("want_kind", string(p.intent.Kind)),
			slog.String("got_kind", string(ev.Action)),
			slog.Int("want_qty", p.intent.Quantity),
			slog.Int("got_qty", ev.Amount),
		)
	}
	return c.Resolve(&domain.TradeSuccess{
		Intent:         p.intent,
		Action:         ev.Action,
		Quantity:       ev.Amount,
		ExecutionPrice: ev.Price,
		NewCash:        ev.NewCash,
		NewStocks:      ev.NewStocks,
	}), true
}

// HandleFailure resolves the pending trade with a server rejection.
func (c *Coordinator) HandleFailure(ev *event.TradeFailed) (domain.TradeOutcome, bool) {
	if !c.claim(ev.Name()) {
		return nil, false
	}
	return c.Resolve(&domain.TradeFailure{
		Intent:  c.pending.intent,
		Reason:  domain.FailureRejected,
		Message: ev.Message,
	}), true
}

// Timeout fails the pending trade if it is still intentID. A fire for an already resolved
// intent is ignored.
func (c *Coordinator) Timeout(intentID string) (domain.TradeOutcome, bool) {
	if c.pending == nil || c.pending.intent.ID != intentID {
		return nil, false
	}
	c.lateUntil = c.cfg.Now().Add(c.cfg.OrphanWindow)
	c.logger.Warn("Trade timed out", slog.String("intent", intentID), slog.Duration("timeout", c.cfg.Timeout))
	return c.Resolve(&domain.TradeFailure{Intent: c.pending.intent, Reason: domain.FailureTimeout}), true
}

// Cancel fails the pending trade because the connection is gone. A late answer can no longer
// arrive on a new connection, so the late slot is dropped too.
func (c *Coordinator) Cancel() (domain.TradeOutcome, bool) {
	c.lateUntil = time.Time{}
	if c.pending == nil {
		return nil, false
	}
	return c.Resolve(&domain.TradeFailure{Intent: c.pending.intent, Reason: domain.FailureConnectionLost}), true
}

// Resolve applies outcome and returns to Idle. Success replaces cash and stocks with the
// server's values; failure touches nothing.
func (c *Coordinator) Resolve(outcome domain.TradeOutcome) domain.TradeOutcome {
	var latency time.Duration
	if c.pending != nil {
		if c.pending.timer != nil {
			c.pending.timer.Stop()
		}
		latency = c.cfg.Now().Sub(c.pending.sentAt)
	}

	switch o := outcome.(type) {
	case *domain.TradeSuccess:
		assets := c.store.Personal()
		assets.Cash = o.NewCash
		assets.Stocks = o.NewStocks
		if err := c.store.SetPersonal(assets); err != nil {
			c.logger.Error("Confirmed balances rejected by store", slog.Any("error", err))
		}
		c.logger.Info("Trade filled",
			slog.String("intent", o.Intent.ID),
			slog.String("price", o.ExecutionPrice.String()),
			slog.String("cash", o.NewCash.String()),
			slog.Int("stocks", o.NewStocks),
			slog.Duration("latency", latency),
		)
	case *domain.TradeFailure:
		c.logger.Info("Trade failed",
			slog.String("intent", o.Intent.ID),
			slog.String("reason", string(o.Reason)),
			slog.String("message", o.Message),
			slog.Duration("latency", latency),
		)
	}

	c.pending = nil
	return outcome
}

// awaitingLate reports whether a timed-out request may still be answered.
func (c *Coordinator) awaitingLate() bool {
	if c.lateUntil.IsZero() {
		return false
	}
	if !c.cfg.Now().Before(c.lateUntil) {
		c.lateUntil = time.Time{}
		return false
	}
	return true
}

// claim decides whether a trade result answers the pending request.
func (c *Coordinator) claim(name string) bool {
	if c.awaitingLate() {
		c.lateUntil = time.Time{}
		c.logger.Warn("Late trade result after timeout ignored", slog.String("event", name))
		return false
	}
	if c.pending == nil {
		c.logger.Warn("Unsolicited trade result ignored", slog.String("event", name))
		return false
	}
	return true
}
