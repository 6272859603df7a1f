package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"market_sync/internal/domain"
	"market_sync/internal/engine"
	"market_sync/internal/service"

	"github.com/olekukonko/tablewriter"
)

const (
	defaultHistoryRows = 10
	defaultTradeRows   = 10
)

// Session is the part of the engine the console drives.
type Session interface {
	Start(ctx context.Context) error
	Submit(ctx context.Context, intent domain.TradeIntent) (domain.TradeIntent, error)
	Logout(ctx context.Context) error
	View() service.MarketView
	Status() engine.Status
}

// TradeHistory reads the local trade journal, newest first. An empty sessionID lists every session.
type TradeHistory interface {
	ListTrades(ctx context.Context, sessionID string, limit int) ([]domain.TradeRecord, error)
}

// ErrUnknownCommand is returned for input the console does not understand.
var ErrUnknownCommand = errors.New("unknown command")

// Console is a line-oriented stand-in for a UI: it prints engine notifications and turns
// typed commands into engine calls.
type Console struct {
	session Session
	creds   domain.CredentialStore
	trades  TradeHistory

	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out.
func NewConsole(session Session, creds domain.CredentialStore, trades TradeHistory, out io.Writer) *Console {
	return &Console{session: session, creds: creds, trades: trades, out: out}
}

// Run executes commands from in until EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if err := c.Execute(ctx, line); err != nil {
				c.printf("error: %s\n", domain.UserMessage(err))
			}
		}
	}
}

// Execute runs one command line.
func (c *Console) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "buy", "sell":
		if len(fields) != 2 {
			return fmt.Errorf("usage: %s <quantity>", cmd)
		}
		qty, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("%w: %q", domain.ErrInvalidQuantity, fields[1])
		}
		kind, err := domain.ParseTradeKind(cmd)
		if err != nil {
			return err
		}
		view := c.session.View()
		intent, err := c.session.Submit(ctx, domain.TradeIntent{Kind: kind, Quantity: qty})
		if err != nil {
			return err
		}
		c.printf("[trade] %s %d sent (est. %s) id=%s\n", intent.Kind, intent.Quantity, view.EstimateCost(qty).StringFixed(2), intent.ID)
		return nil

	case "login":
		if len(fields) != 2 {
			return errors.New("usage: login <token>")
		}
		if err := c.creds.Set(fields[1]); err != nil {
			return err
		}
		return c.session.Start(ctx)

	case "logout":
		return c.session.Logout(ctx)

	case "state":
		c.printState()
		return nil

	case "history":
		n := defaultHistoryRows
		if len(fields) == 2 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: history [rows]")
			}
			n = v
		}
		c.printHistory(n)
		return nil

	case "trades":
		n := defaultTradeRows
		if len(fields) == 2 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: trades [rows]")
			}
			n = v
		}
		return c.printTrades(ctx, n)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// OnNotification is an engine.Listener.
func (c *Console) OnNotification(n engine.Notification) {
	switch v := n.(type) {
	case engine.ConnectionChanged:
		c.printf("[session] %s\n", v.State)
	case engine.SessionExpired:
		c.printf("[session] %s\n", domain.MsgSessionExpired)
	case engine.TradeResolved:
		switch o := v.Outcome.(type) {
		case *domain.TradeSuccess:
			c.printf("[trade] filled %s %d @ %s cash=%s stocks=%d\n",
				o.Action, o.Quantity, o.ExecutionPrice.StringFixed(2), o.NewCash.StringFixed(2), o.NewStocks)
		case *domain.TradeFailure:
			c.printf("[trade] %s\n", o.Error())
		}
	case engine.StoreUpdated:
		if v.Unsynced {
			return
		}
		c.printState()
	}
}

func (c *Console) printState() {
	v := c.session.View()
	st := c.session.Status()

	if v.Unsynced {
		c.printf("[market] %s, loading...\n", st.Connection)
		return
	}
	running := "stopped"
	switch {
	case v.Clock.IsFinished():
		running = "finished"
	case v.Clock.IsRunning:
		running = fmt.Sprintf("next day in %ds", v.Clock.CountdownSeconds)
	}
	c.printf("[market] day %d/%d (%s) price=%s cash=%s stocks=%d debt=%s trade=%s\n",
		v.Clock.CurrentDay, v.Clock.TotalDays, running,
		v.CurrentPrice.StringFixed(2), v.Personal.Cash.StringFixed(2), v.Personal.Stocks,
		v.Personal.Debt.StringFixed(2), st.Trade)
}

// printHistory renders the newest n days of the price history.
func (c *Console) printHistory(n int) {
	h := c.session.View().History
	if len(h) > n {
		h = h[len(h)-n:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	table := tablewriter.NewWriter(c.out)
	table.Header("Day", "Price", "Trend", "Headline")
	for _, p := range h {
		title := ""
		if p.Title != nil {
			title = *p.Title
		}
		table.Append(strconv.Itoa(p.Day), p.Price.StringFixed(2), p.Trend, title)
	}
	table.Render()
}

// printTrades renders the newest n journal entries across sessions.
func (c *Console) printTrades(ctx context.Context, n int) error {
	recs, err := c.trades.ListTrades(ctx, "", n)
	if err != nil {
		return fmt.Errorf("read trade journal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(recs) == 0 {
		fmt.Fprintln(c.out, "[trade] journal is empty")
		return nil
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Day", "Kind", "Qty", "Result", "Price", "Cash")
	for _, r := range recs {
		price, cash := "-", "-"
		if r.Result == domain.ResultSuccess {
			price = r.ExecutionPrice.StringFixed(2)
			cash = r.NewCash.StringFixed(2)
		}
		table.Append(r.CreatedAt.Format("01-02 15:04:05"), strconv.Itoa(r.Day), r.Kind, strconv.Itoa(r.Quantity), r.Result, price, cash)
	}
	table.Render()
	return nil
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
