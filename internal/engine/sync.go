package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/event"
	"market_sync/internal/infra"
	"market_sync/internal/service"
	"market_sync/internal/trade"
)

const journalTimeout = 5 * time.Second

func (e *Engine) handleInbound(m inboundMsg) {
	name := m.ev.Name()
	if e.conn == nil || m.connID != e.connID {
		e.logDiscard(name, infra.ReasonSuperseded, nil)
		return
	}

	switch ev := m.ev.(type) {
	case *event.FullSync:
		e.applyFullSync(ev)
	case *event.ClockTick:
		e.applyClockTick(ev)
	case *event.PriceAdvance:
		e.applyPriceAdvance(ev)
	case *event.TradeSucceeded:
		if outcome, ok := e.coord.HandleSuccess(ev); ok {
			e.finishTrade(outcome)
		} else {
			e.metrics.RecordDiscard(name, infra.ReasonUnsolicited)
		}
	case *event.TradeFailed:
		if outcome, ok := e.coord.HandleFailure(ev); ok {
			e.finishTrade(outcome)
		} else {
			e.metrics.RecordDiscard(name, infra.ReasonUnsolicited)
		}
	default:
		e.logger.Warn("Unknown event type", slog.String("event", name))
	}
}

func (e *Engine) handleDecodeError(m decodeErrMsg) {
	if m.connID != e.connID {
		return
	}
	e.metrics.RecordDecodeError()
	e.logger.Warn("Malformed frame rejected", slog.Any("error", m.err))
}

// applyFullSync replaces everything. It is the only path that may move the day backwards.
func (e *Engine) applyFullSync(ev *event.FullSync) {
	epoch, err := e.store.ReplaceAll(service.Snapshot{
		Clock:        ev.Clock,
		CurrentPrice: ev.CurrentPrice,
		History:      ev.History,
		Personal:     ev.Personal,
	})
	if err != nil {
		e.logDiscard(ev.Name(), infra.ReasonInvalid, err)
		return
	}

	e.metrics.RecordEvent(ev.Name())
	e.metrics.SetEpoch(epoch)
	e.logger.Info("Snapshot applied",
		slog.Uint64("epoch", epoch),
		slog.Int("day", ev.Clock.CurrentDay),
		slog.Int("history", len(ev.History)),
	)
	e.notifyStore()
}

func (e *Engine) applyClockTick(ev *event.ClockTick) {
	if e.store.Unsynced() {
		e.logDiscard(ev.Name(), infra.ReasonUnsynced, nil)
		return
	}
	if err := e.store.SetClock(ev.Clock); err != nil {
		reason := infra.ReasonInvalid
		if errors.Is(err, service.ErrDayRegression) {
			reason = infra.ReasonRegression
		}
		e.logDiscard(ev.Name(), reason, err)
		return
	}
	e.metrics.RecordEvent(ev.Name())
	e.notifyStore()
}

func (e *Engine) applyPriceAdvance(ev *event.PriceAdvance) {
	if e.store.Unsynced() {
		e.logDiscard(ev.Name(), infra.ReasonUnsynced, nil)
		return
	}
	if err := e.store.AdvancePrice(ev.Day, ev.Price, ev.History); err != nil {
		reason := infra.ReasonInvalid
		switch {
		case errors.Is(err, service.ErrDayRegression):
			reason = infra.ReasonStale
		case errors.Is(err, service.ErrDayGap):
			reason = infra.ReasonGap
		}
		e.logDiscard(ev.Name(), reason, err)
		return
	}
	e.metrics.RecordEvent(ev.Name())
	e.notifyStore()
}

func (e *Engine) handleSubmit(intent domain.TradeIntent) (domain.TradeIntent, error) {
	guard := trade.Guard{
		Connected:   e.state == domain.Connected && e.conn != nil,
		GameRunning: e.store.Clock().IsRunning,
	}
	conn := e.conn
	return e.coord.Submit(intent, guard, func(o event.Outbound) error {
		return conn.Send(o)
	})
}

// finishTrade publishes an outcome the coordinator has already applied.
func (e *Engine) finishTrade(outcome domain.TradeOutcome) {
	rec := domain.NewTradeRecord(e.cfg.SessionID, outcome, e.store.Clock().CurrentDay, e.store.Epoch())
	e.metrics.RecordTrade(rec.Result)

	if _, ok := outcome.(*domain.TradeSuccess); ok {
		e.notifyStore()
	}
	e.notify(TradeResolved{Outcome: outcome})

	if e.deps.Journal == nil {
		return
	}
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if err := e.deps.Journal.RecordTrade(ctx, rec); err != nil {
			e.logger.Error("Failed to journal trade", slog.String("intent", rec.IntentID), slog.Any("error", err))
		}
	}()
}
