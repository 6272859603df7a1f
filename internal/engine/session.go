package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/infra"
)

func (e *Engine) handleStart() error {
	token, err := e.deps.Credentials.Get()
	if err != nil && !errors.Is(err, domain.ErrNoCredential) {
		// Only a missing or expired credential ends the session.
		e.logger.Error("Failed to read credential", slog.Any("error", err))
		return fmt.Errorf("read credential: %w", err)
	}
	if err == nil {
		err = infra.CheckCredential(token, e.cfg.Now(), e.cfg.CredentialSkew)
	}

	if e.state != domain.Disconnected {
		if err != nil {
			return err
		}
		e.refreshToken(token)
		return nil
	}

	if err != nil {
		e.expireSession(err)
		return err
	}

	e.token = token
	e.retry = 0
	e.setState(domain.Connecting)
	e.dial(0, false)
	return nil
}

// dial connects in the background and posts the result back to the loop. Results from an
// older generation are dropped by the handlers.
func (e *Engine) dial(delay time.Duration, reconnect bool) {
	e.cancelDial()
	e.dialGen++
	gen := e.dialGen
	ctx, cancel := context.WithCancel(e.runCtx)
	e.dialCancel = cancel

	token := e.token
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if e.cfg.DialLimiter != nil {
			if err := e.cfg.DialLimiter.Wait(ctx); err != nil {
				return
			}
		}
		if reconnect {
			e.metrics.RecordReconnect()
		}

		conn, err := e.deps.Dialer.Dial(ctx, token)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close("superseded")
			}
			return
		}
		if err != nil {
			e.post(dialFailedMsg{gen: gen, err: err})
			return
		}
		if !e.post(connectedMsg{gen: gen, conn: conn}) {
			conn.Close("engine stopped")
		}
	}()
}

// refreshToken adopts a new credential for an active session. A dial in progress restarts with
// it; a live connection keeps running and the token is used on the next reconnect.
func (e *Engine) refreshToken(token string) {
	if token == e.token {
		return
	}
	e.token = token
	e.logger.Info("Credential updated", slog.String("state", e.state.String()))

	switch e.state {
	case domain.Connecting:
		e.dial(0, false)
	case domain.Reconnecting:
		e.retry = 0
		e.dial(0, true)
	}
}

// nextDelay returns the backoff for the current attempt and advances the counter. The exponent
// starts over after MaxRetries attempts.
func (e *Engine) nextDelay() time.Duration {
	delay := infra.Backoff(e.retry, e.cfg.BaseDelay, e.cfg.MaxDelay)
	e.retry++
	if e.retry > e.cfg.MaxRetries {
		e.retry = 0
	}
	return delay
}

func (e *Engine) cancelDial() {
	if e.dialCancel != nil {
		e.dialCancel()
		e.dialCancel = nil
	}
}

func (e *Engine) handleConnected(m connectedMsg) {
	if m.gen != e.dialGen || e.state == domain.Disconnected {
		e.closeAsync(m.conn, "superseded")
		return
	}
	e.dialCancel = nil

	e.conn = m.conn
	e.connID = m.conn.ID()
	e.retry = 0

	// Nothing from before this connection is trusted until its snapshot arrives.
	e.store.MarkUnsynced()
	e.setState(domain.Connected)
	e.notifyStore()

	e.unsubscribe = m.conn.Subscribe(connHandler{e: e})
}

func (e *Engine) handleDialFailed(m dialFailedMsg) {
	if m.gen != e.dialGen || e.state == domain.Disconnected {
		return
	}
	e.dialCancel = nil

	if domain.IsAuthError(m.err) {
		e.logger.Warn("Handshake refused", slog.Any("error", m.err))
		e.expireSession(m.err)
		return
	}
	if !domain.IsRetriable(m.err) {
		// The credential is kept; Start may be called again once the cause is fixed.
		e.logger.Error("Dial failed permanently", slog.Any("error", m.err))
		e.endSession("dial failed")
		return
	}

	retry := e.retry
	delay := e.nextDelay()
	e.logger.Warn("Connection failed", slog.Any("error", m.err), slog.Int("retry", retry), slog.Duration("delay", delay))
	e.setState(domain.Reconnecting)
	e.dial(delay, true)
}

func (e *Engine) handleClosed(m closedMsg) {
	if e.conn == nil || m.connID != e.connID {
		return
	}
	e.logger.Warn("Connection lost", slog.Any("error", m.err))

	e.dropConn()
	if outcome, ok := e.coord.Cancel(); ok {
		e.finishTrade(outcome)
	}

	if domain.IsAuthError(m.err) {
		e.expireSession(m.err)
		return
	}

	// Last known values stay visible but are flagged until a fresh snapshot.
	e.store.MarkUnsynced()
	e.setState(domain.Reconnecting)
	e.notifyStore()

	e.dial(e.nextDelay(), true)
}

func (e *Engine) handleLogout() {
	e.logger.Info("Logout")
	e.endSession("logout")
	if err := e.deps.Credentials.Clear(); err != nil {
		e.logger.Error("Failed to clear credential", slog.Any("error", err))
	}
}

// expireSession ends the session because the credential is unusable.
func (e *Engine) expireSession(err error) {
	e.endSession("session expired")
	if clearErr := e.deps.Credentials.Clear(); clearErr != nil {
		e.logger.Error("Failed to clear credential", slog.Any("error", clearErr))
	}
	e.notify(SessionExpired{Err: err})
}

// endSession tears everything down and leaves the engine Disconnected with an empty store.
func (e *Engine) endSession(reason string) {
	e.cancelDial()
	e.dialGen++

	if e.conn != nil {
		conn := e.conn
		e.dropConn()
		e.closeAsync(conn, reason)
	}
	if outcome, ok := e.coord.Cancel(); ok {
		e.finishTrade(outcome)
	}

	e.token = ""
	e.retry = 0
	e.store.Reset()
	e.metrics.SetEpoch(e.store.Epoch())
	e.setState(domain.Disconnected)
	e.notifyStore()
}

// dropConn unsubscribes from the current connection. Closing it is up to the caller.
func (e *Engine) dropConn() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	e.conn = nil
	e.connID = 0
}

// closeAsync closes conn off the loop. Close waits for the read goroutine, which may itself
// be waiting to post into the inbox.
func (e *Engine) closeAsync(conn Conn, reason string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		if err := conn.Close(reason); err != nil {
			e.logger.Debug("Close failed", slog.Any("error", err))
		}
	}()
}
