package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/event"
	"market_sync/internal/infra"
	"market_sync/internal/infra/ws"
	"market_sync/internal/service"
	"market_sync/internal/trade"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrStopped is returned to callers once Run has exited.
var ErrStopped = errors.New("engine stopped")

// Conn is one live session connection.
type Conn interface {
	ID() uint64
	Send(event.Outbound) error
	Subscribe(ws.Handler) (unsubscribe func())
	Close(reason string) error
}

// Dialer opens authenticated connections.
type Dialer interface {
	Dial(ctx context.Context, token string) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, token string) (Conn, error)

func (f DialFunc) Dial(ctx context.Context, token string) (Conn, error) { return f(ctx, token) }

// Config tunes the engine. Zero values take defaults.
type Config struct {
	InboxSize      int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxRetries     int // backoff exponent starts over after this many attempts
	DialLimiter    *rate.Limiter
	CredentialSkew time.Duration
	TradeTimeout   time.Duration
	OrphanWindow   time.Duration
	DumpFile       string
	SessionID      string

	// AfterFunc and Now are replaced in tests.
	AfterFunc trade.AfterFunc
	Now       func() time.Time
}

// Deps are the engine's collaborators. Journal and Metrics may be nil.
type Deps struct {
	Dialer      Dialer
	Credentials domain.CredentialStore
	Journal     domain.TradeJournal
	Metrics     *infra.Metrics
}

// Engine is the synchronization engine. All state changes happen on the goroutine running Run;
// everything else posts a message into the inbox.
type Engine struct {
	cfg     Config
	deps    Deps
	metrics *infra.Metrics
	logger  *slog.Logger

	inbox    chan message
	stopped  chan struct{}
	stopOnce sync.Once
	bg       sync.WaitGroup

	store *service.MarketStore
	coord *trade.Coordinator

	// loop-owned
	runCtx      context.Context
	state       domain.ConnectionState
	token       string
	conn        Conn
	connID      uint64
	unsubscribe func()
	retry       int
	dialGen     uint64
	dialCancel  context.CancelFunc

	listenersMu  sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64

	mu     sync.RWMutex // Used only for external reads
	status Status
}

// Status is the loop-owned state visible to other goroutines.
type Status struct {
	Connection domain.ConnectionState
	Trade      trade.State
	Pending    *domain.TradeIntent
	ConnID     uint64
}

// New creates a stopped engine. Call Run, then Start.
func New(deps Deps, cfg Config) *Engine {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.DumpFile == "" {
		cfg.DumpFile = "panic_dump.json"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = infra.NewMetrics()
	}

	e := &Engine{
		cfg:       cfg,
		deps:      deps,
		metrics:   deps.Metrics,
		logger:    slog.Default().With("module", "engine", "session", cfg.SessionID),
		inbox:     make(chan message, cfg.InboxSize),
		stopped:   make(chan struct{}),
		store:     service.NewMarketStore(),
		listeners: make(map[uint64]Listener),
	}
	e.coord = trade.NewCoordinator(e.store, trade.Config{
		Timeout:      cfg.TradeTimeout,
		OrphanWindow: cfg.OrphanWindow,
		AfterFunc:    cfg.AfterFunc,
		Now:          cfg.Now,
		OnTimeout:    func(id string) { e.post(timeoutMsg{intentID: id}) },
	})
	return e
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.runCtx = ctx
	e.logger.Info("Engine started")

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			e.DumpState(e.cfg.DumpFile)
			e.shutdown()
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping...")
			e.shutdown()
			return
		case m := <-e.inbox:
			e.process(m)
		}
	}
}

func (e *Engine) shutdown() {
	e.stopOnce.Do(e.stop)
}

func (e *Engine) stop() {
	e.cancelDial()
	close(e.stopped)

	if e.conn != nil {
		conn := e.conn
		e.dropConn()
		if err := conn.Close("shutdown"); err != nil {
			e.logger.Debug("Close on shutdown", slog.Any("error", err))
		}
	}
	if outcome, ok := e.coord.Cancel(); ok {
		e.finishTrade(outcome)
	}

	e.listenersMu.Lock()
	e.listeners = make(map[uint64]Listener)
	e.listenersMu.Unlock()

	e.bg.Wait()
}

func (e *Engine) process(m message) {
	switch msg := m.(type) {
	case startCmd:
		msg.reply <- e.handleStart()
	case connectedMsg:
		e.handleConnected(msg)
	case dialFailedMsg:
		e.handleDialFailed(msg)
	case inboundMsg:
		e.handleInbound(msg)
	case decodeErrMsg:
		e.handleDecodeError(msg)
	case closedMsg:
		e.handleClosed(msg)
	case submitCmd:
		intent, err := e.handleSubmit(msg.intent)
		msg.reply <- submitResult{intent: intent, err: err}
	case timeoutMsg:
		if outcome, ok := e.coord.Timeout(msg.intentID); ok {
			e.finishTrade(outcome)
		}
	case logoutCmd:
		e.handleLogout()
		close(msg.done)
	case inspectCmd:
		msg.fn()
		close(msg.done)
	default:
		e.logger.Warn("Unknown message type", slog.String("type", fmt.Sprintf("%T", m)))
	}
	e.publishStatus()
}

// post hands m to the loop. It gives up once the engine has stopped.
func (e *Engine) post(m message) bool {
	select {
	case e.inbox <- m:
		return true
	case <-e.stopped:
		return false
	}
}

func (e *Engine) call(ctx context.Context, m message, done <-chan struct{}) error {
	select {
	case e.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// Start establishes the session with the stored credential. A missing or expired credential
// takes the session-expired path and is returned; the dial itself runs in the background.
func (e *Engine) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case e.inbox <- startCmd{reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// Submit hands a trade intent to the coordinator and returns the accepted intent with its ID.
// The outcome arrives later as a TradeResolved notification.
func (e *Engine) Submit(ctx context.Context, intent domain.TradeIntent) (domain.TradeIntent, error) {
	reply := make(chan submitResult, 1)
	select {
	case e.inbox <- submitCmd{intent: intent, reply: reply}:
	case <-ctx.Done():
		return domain.TradeIntent{}, ctx.Err()
	case <-e.stopped:
		return domain.TradeIntent{}, domain.ErrSessionUnavailable
	}
	select {
	case res := <-reply:
		return res.intent, res.err
	case <-ctx.Done():
		return domain.TradeIntent{}, ctx.Err()
	case <-e.stopped:
		return domain.TradeIntent{}, domain.ErrSessionUnavailable
	}
}

// Logout closes the session, fails any pending trade, clears the store and the credential.
func (e *Engine) Logout(ctx context.Context) error {
	done := make(chan struct{})
	return e.call(ctx, logoutCmd{done: done}, done)
}

// Sync runs fn on the loop and waits for it. Tests use it to observe loop-owned state
// after everything queued before it has been processed.
func (e *Engine) Sync(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if fn == nil {
		fn = func() {}
	}
	return e.call(ctx, inspectCmd{fn: fn, done: done}, done)
}

// View returns a snapshot of the market state.
func (e *Engine) View() service.MarketView {
	return e.store.View()
}

// Status returns the connection and trade state (external read).
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// SessionID identifies this process run in logs and the trade journal.
func (e *Engine) SessionID() string {
	return e.cfg.SessionID
}

func (e *Engine) publishStatus() {
	s := Status{
		Connection: e.state,
		Trade:      e.coord.State(),
		ConnID:     e.connID,
	}
	if intent, ok := e.coord.PendingIntent(); ok {
		s.Pending = &intent
	}

	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) setState(s domain.ConnectionState) {
	if e.state == s {
		return
	}
	e.logger.Info("Connection state changed", slog.String("from", e.state.String()), slog.String("to", s.String()))
	e.state = s
	e.metrics.SetConnectionState(s)
	e.notify(ConnectionChanged{State: s})
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (e *Engine) DumpState(filename string) {
	e.logger.Info("Dumping internal state...", slog.String("file", filename))

	view := e.store.View()
	var pending *domain.TradeIntent
	if intent, ok := e.coord.PendingIntent(); ok {
		pending = &intent
	}

	data := struct {
		SessionID  string                `json:"session_id"`
		Connection string                `json:"connection"`
		ConnID     uint64                `json:"conn_id"`
		Epoch      uint64                `json:"epoch"`
		Unsynced   bool                  `json:"unsynced"`
		Clock      domain.GameClock      `json:"clock"`
		Price      string                `json:"current_price"`
		History    domain.PriceHistory   `json:"history"`
		Personal   domain.PersonalAssets `json:"personal"`
		Pending    *domain.TradeIntent   `json:"pending,omitempty"`
	}{
		SessionID:  e.cfg.SessionID,
		Connection: e.state.String(),
		ConnID:     e.connID,
		Epoch:      view.Epoch,
		Unsynced:   view.Unsynced,
		Clock:      view.Clock,
		Price:      view.CurrentPrice.String(),
		History:    view.History,
		Personal:   view.Personal,
		Pending:    pending,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		e.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		e.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
