package engine

import (
	"log/slog"

	"market_sync/internal/domain"
	"market_sync/internal/infra"
)

// Notification is what listeners receive. The set is closed.
type Notification interface {
	isNotification()
}

// ConnectionChanged reports a new connection state.
type ConnectionChanged struct {
	State domain.ConnectionState
}

// StoreUpdated reports that the market view changed. Read it with Engine.View.
type StoreUpdated struct {
	Epoch    uint64
	Unsynced bool
}

// TradeResolved carries the single outcome of an accepted trade intent.
type TradeResolved struct {
	Outcome domain.TradeOutcome
}

// SessionExpired means the credential was refused or is missing; the user must sign in again.
type SessionExpired struct {
	Err error
}

func (ConnectionChanged) isNotification() {}
func (StoreUpdated) isNotification()      {}
func (TradeResolved) isNotification()     {}
func (SessionExpired) isNotification()    {}

// Listener is called on the engine loop and must not block.
type Listener func(Notification)

// Subscribe registers l until the returned function is called or Run exits.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.listenersMu.Lock()
	e.nextListener++
	id := e.nextListener
	e.listeners[id] = l
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

func (e *Engine) notify(n Notification) {
	e.listenersMu.Lock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.listenersMu.Unlock()

	for _, l := range ls {
		l(n)
	}
}

func (e *Engine) notifyStore() {
	e.notify(StoreUpdated{Epoch: e.store.Epoch(), Unsynced: e.store.Unsynced()})
}

func (e *Engine) logDiscard(name, reason string, err error) {
	e.metrics.RecordDiscard(name, reason)
	attrs := []any{slog.String("event", name), slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	if reason == infra.ReasonSuperseded || reason == infra.ReasonUnsynced {
		e.logger.Debug("Event discarded", attrs...)
		return
	}
	e.logger.Warn("Event discarded", attrs...)
}
