package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/engine"
	"market_sync/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	submitted []domain.TradeIntent
	submitErr error
	started   int
	loggedOut int
	view      service.MarketView
}

func (f *fakeSession) Start(context.Context) error {
	f.started++
	return nil
}

func (f *fakeSession) Submit(_ context.Context, intent domain.TradeIntent) (domain.TradeIntent, error) {
	if f.submitErr != nil {
		return domain.TradeIntent{}, f.submitErr
	}
	intent.ID = "intent-1"
	f.submitted = append(f.submitted, intent)
	return intent, nil
}

func (f *fakeSession) Logout(context.Context) error {
	f.loggedOut++
	return nil
}

func (f *fakeSession) View() service.MarketView { return f.view }

func (f *fakeSession) Status() engine.Status {
	return engine.Status{Connection: domain.Connected}
}

type memCreds struct{ token string }

func (m *memCreds) Get() (string, error) {
	if m.token == "" {
		return "", domain.ErrNoCredential
	}
	return m.token, nil
}
func (m *memCreds) Set(t string) error { m.token = t; return nil }
func (m *memCreds) Clear() error       { m.token = ""; return nil }

type memTrades struct {
	recs  []domain.TradeRecord
	err   error
	limit int
}

func (m *memTrades) ListTrades(_ context.Context, _ string, limit int) ([]domain.TradeRecord, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && len(m.recs) > limit {
		return m.recs[:limit], nil
	}
	return m.recs, nil
}

func newTestConsole() (*Console, *fakeSession, *memCreds, *bytes.Buffer) {
	s := &fakeSession{view: service.MarketView{
		Clock:        domain.GameClock{CurrentDay: 5, IsRunning: true, CountdownSeconds: 12, TotalDays: 120},
		CurrentPrice: decimal.RequireFromString("52.10"),
		Personal:     domain.PersonalAssets{Cash: decimal.RequireFromString("1004"), Stocks: 10},
	}}
	creds := &memCreds{}
	out := &bytes.Buffer{}
	return NewConsole(s, creds, &memTrades{}, out), s, creds, out
}

func TestConsole_Trade(t *testing.T) {
	c, s, _, out := newTestConsole()

	require.NoError(t, c.Execute(context.Background(), "BUY 3"))
	require.Len(t, s.submitted, 1)
	assert.Equal(t, domain.TradeIntent{ID: "intent-1", Kind: domain.TradeBuy, Quantity: 3}, s.submitted[0])
	assert.Contains(t, out.String(), "est. 156.30")

	require.NoError(t, c.Execute(context.Background(), "sell 1"))
	assert.Equal(t, domain.TradeSell, s.submitted[1].Kind)
}

func TestConsole_Errors(t *testing.T) {
	c, s, _, _ := newTestConsole()
	ctx := context.Background()

	assert.ErrorIs(t, c.Execute(ctx, "buy lots"), domain.ErrInvalidQuantity)
	assert.Error(t, c.Execute(ctx, "buy"))
	assert.ErrorIs(t, c.Execute(ctx, "hodl"), ErrUnknownCommand)
	assert.NoError(t, c.Execute(ctx, "   "))

	s.submitErr = domain.ErrAlreadyPending
	assert.ErrorIs(t, c.Execute(ctx, "buy 1"), domain.ErrAlreadyPending)
}

func TestConsole_LoginLogout(t *testing.T) {
	c, s, creds, _ := newTestConsole()
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "login abc"))
	assert.Equal(t, "abc", creds.token)
	assert.Equal(t, 1, s.started)

	require.NoError(t, c.Execute(ctx, "logout"))
	assert.Equal(t, 1, s.loggedOut)
}

func TestConsole_Notifications(t *testing.T) {
	c, _, _, out := newTestConsole()

	c.OnNotification(engine.ConnectionChanged{State: domain.Reconnecting})
	c.OnNotification(engine.SessionExpired{Err: domain.ErrUnauthorized})
	c.OnNotification(engine.TradeResolved{Outcome: &domain.TradeSuccess{
		Action:         domain.TradeBuy,
		Quantity:       3,
		ExecutionPrice: decimal.RequireFromString("52.10"),
		NewCash:        decimal.RequireFromString("847.70"),
		NewStocks:      13,
	}})
	c.OnNotification(engine.TradeResolved{Outcome: &domain.TradeFailure{Reason: domain.FailureRejected, Message: "market closed"}})
	c.OnNotification(engine.StoreUpdated{Epoch: 1})

	text := out.String()
	assert.Contains(t, text, "[session] RECONNECTING")
	assert.Contains(t, text, domain.MsgSessionExpired)
	assert.Contains(t, text, "filled BUY 3 @ 52.10 cash=847.70 stocks=13")
	assert.Contains(t, text, "trade rejected: market closed")
	assert.Contains(t, text, "day 5/120 (next day in 12s) price=52.10")
}

func TestConsole_Run(t *testing.T) {
	c, s, _, out := newTestConsole()

	err := c.Run(context.Background(), strings.NewReader("buy 2\nbogus\nstate\n"))
	require.NoError(t, err)

	require.Len(t, s.submitted, 1)
	assert.Contains(t, out.String(), "error: unknown command: bogus")
	assert.Contains(t, out.String(), "[market] day 5/120")
}

func TestConsole_History(t *testing.T) {
	c, s, _, out := newTestConsole()
	headline := "Chip shortage eases"
	s.view.History = domain.PriceHistory{
		{Day: 1, Price: decimal.RequireFromString("40.00"), Trend: "FLAT"},
		{Day: 2, Price: decimal.RequireFromString("47.25"), Trend: "UP"},
		{Day: 3, Price: decimal.RequireFromString("52.10"), Trend: "UP", Title: &headline},
	}
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "history 2"))
	text := out.String()
	assert.Contains(t, text, "47.25")
	assert.Contains(t, text, "52.10")
	assert.Contains(t, text, headline)
	assert.NotContains(t, text, "40.00")

	assert.Error(t, c.Execute(ctx, "history zero"))
}

func TestConsole_Trades(t *testing.T) {
	s := &fakeSession{}
	out := &bytes.Buffer{}
	trades := &memTrades{recs: []domain.TradeRecord{
		{
			Kind: "BUY", Quantity: 3, Result: domain.ResultSuccess, Day: 5,
			ExecutionPrice: decimal.RequireFromString("52.10"), NewCash: decimal.RequireFromString("847.70"),
			CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			Kind: "SELL", Quantity: 50, Result: string(domain.FailureRejected), Day: 4,
			CreatedAt: time.Date(2026, 3, 1, 9, 29, 0, 0, time.UTC),
		},
	}}
	c := NewConsole(s, &memCreds{}, trades, out)
	ctx := context.Background()

	require.NoError(t, c.Execute(ctx, "trades 5"))
	assert.Equal(t, 5, trades.limit)
	text := out.String()
	assert.Contains(t, text, "847.70")
	assert.Contains(t, text, string(domain.FailureRejected))
	assert.Contains(t, text, "03-01 09:30:00")

	out.Reset()
	require.NoError(t, c.Execute(ctx, "trades"))
	assert.Equal(t, defaultTradeRows, trades.limit)

	assert.Error(t, c.Execute(ctx, "trades -1"))

	trades.err = errors.New("disk I/O error")
	err := c.Execute(ctx, "trades")
	assert.ErrorIs(t, err, trades.err)

	out.Reset()
	trades.err = nil
	trades.recs = nil
	require.NoError(t, c.Execute(ctx, "trades"))
	assert.Contains(t, out.String(), "journal is empty")
}

func TestConsole_FinishedGame(t *testing.T) {
	c, s, _, out := newTestConsole()
	s.view.Clock = domain.GameClock{CurrentDay: 120, TotalDays: 120}

	require.NoError(t, c.Execute(context.Background(), "state"))
	assert.Contains(t, out.String(), "day 120/120 (finished)")
}
