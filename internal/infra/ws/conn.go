// Package ws is the session transport: one authenticated websocket connection carrying
// JSON event envelopes in both directions.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"market_sync/internal/domain"
	"market_sync/internal/event"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultReadTimeout      = 60 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// ErrClosed is returned by Send after the connection is closed.
var ErrClosed = errors.New("connection closed")

// Handler receives everything read from one connection, in arrival order.
// Calls come from the connection's read goroutine and must not block.
type Handler interface {
	HandleEvent(connID uint64, ev event.Inbound)
	HandleDecodeError(connID uint64, err error)
	// HandleClose is called once when the connection ends for any reason.
	HandleClose(connID uint64, err error)
}

// Config configures a Dialer.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

// Dialer opens connections. Each connection gets the next connection ID.
type Dialer struct {
	cfg    Config
	dialer websocket.Dialer
	nextID atomic.Uint64
	logger *slog.Logger
}

// NewDialer creates a dialer for cfg.URL.
func NewDialer(cfg Config) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dialer{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: cfg.Logger.With("module", "ws"),
	}
}

// Dial performs the authenticated handshake. A 401/403 answer wraps domain.ErrUnauthorized;
// any other failure is a retriable *domain.NetworkError.
func (d *Dialer) Dial(ctx context.Context, token string) (*Conn, error) {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", domain.ErrUnauthorized, resp.StatusCode)
		}
		return nil, domain.NewNetworkError("dial", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}

	c := &Conn{
		id:       d.nextID.Add(1),
		ws:       ws,
		cfg:      d.cfg,
		handlers: make(map[uint64]Handler),
		done:     make(chan struct{}),
	}
	c.logger = d.logger.With("conn", c.id)

	ws.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	})

	c.logger.Info("Connected", slog.String("url", d.cfg.URL))
	return c, nil
}

// Conn is one websocket connection instance.
type Conn struct {
	id     uint64
	ws     *websocket.Conn
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	handlers  map[uint64]Handler
	nextSubID uint64
	started   bool
	closed    bool
	closeErr  error

	done chan struct{}
	wg   sync.WaitGroup
}

// ID returns the connection instance ID.
func (c *Conn) ID() uint64 {
	return c.id
}

// Subscribe registers h. Reading starts with the first subscription so nothing sent by the
// server right after the handshake is lost.
func (c *Conn) Subscribe(h Handler) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSubID++
	subID := c.nextSubID
	c.handlers[subID] = h
	start := !c.started && !c.closed
	c.started = true
	c.mu.Unlock()

	if start {
		c.wg.Add(2)
		go c.readLoop()
		go c.pingLoop()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers, subID)
			c.mu.Unlock()
		})
	}
}

// Send encodes and writes one outbound event.
func (c *Conn) Send(o event.Outbound) error {
	frame, err := event.Encode(o)
	if err != nil {
		return err
	}
	return c.threadSafeWrite(websocket.TextMessage, frame)
}

// Close sends a close frame with reason and tears the connection down. Safe to call twice.
func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = fmt.Errorf("closed locally: %s", reason)
	started := c.started
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()

	close(c.done)
	err := c.ws.Close()
	if started {
		c.wg.Wait()
	}
	c.logger.Info("Disconnected", slog.String("reason", reason))
	return err
}

func (c *Conn) threadSafeWrite(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(msgType, data); err != nil {
		return domain.NewNetworkError("write", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer c.wg.Done()

	var readErr error
	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := event.Decode(msg)
		for _, h := range c.snapshotHandlers() {
			if err != nil {
				h.HandleDecodeError(c.id, err)
			} else {
				h.HandleEvent(c.id, ev)
			}
		}
	}

	c.mu.Lock()
	if c.closeErr != nil {
		readErr = c.closeErr
	} else {
		c.closed = true
		c.closeErr = readErr
		close(c.done)
	}
	c.mu.Unlock()

	if websocket.IsCloseError(readErr, websocket.ClosePolicyViolation) {
		readErr = fmt.Errorf("%w: %v", domain.ErrUnauthorized, readErr)
	}
	c.logger.Debug("Read loop stopped", slog.Any("error", readErr))

	for _, h := range c.snapshotHandlers() {
		h.HandleClose(c.id, readErr)
	}
	c.ws.Close()
}

func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("Failed to send ping", slog.Any("error", err))
			}
		}
	}
}

func (c *Conn) snapshotHandlers() []Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := make([]Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	return hs
}
