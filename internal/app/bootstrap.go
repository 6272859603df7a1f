package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"market_sync/internal/engine"
	"market_sync/internal/infra"
	"market_sync/internal/infra/storage"
	"market_sync/internal/infra/ws"

	"golang.org/x/time/rate"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config      *infra.Config
	Storage     *storage.Storage
	Credentials *storage.CredentialStore
	Metrics     *infra.Metrics
	Engine      *engine.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (config, logger, DB, metrics, engine).
func (b *Bootstrap) Initialize() error {
	slog.Info("Bootstrapping market-sync...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	b.Credentials = storage.NewCredentialStore(store)
	slog.Info("Database initialized")

	if cfg.Server.Token != "" {
		if err := b.Credentials.Set(cfg.Server.Token); err != nil {
			return err
		}
		slog.Info("Credential seeded from configuration")
	}

	// 4. Metrics
	b.Metrics = infra.NewMetrics()

	// 5. Engine
	b.Engine = engine.New(engine.Deps{
		Dialer:      NewDialer(cfg),
		Credentials: b.Credentials,
		Journal:     store,
		Metrics:     b.Metrics,
	}, engine.Config{
		InboxSize:      cfg.Engine.InboxSize,
		BaseDelay:      cfg.BaseDelay(),
		MaxDelay:       cfg.MaxDelay(),
		MaxRetries:     cfg.Reconnect.MaxRetries,
		DialLimiter:    rate.NewLimiter(rate.Limit(cfg.Reconnect.DialsPerMin/60), cfg.Reconnect.DialBurst),
		CredentialSkew: cfg.CredentialSkew(),
		TradeTimeout:   cfg.TradeTimeout(),
		OrphanWindow:   cfg.OrphanWindow(),
		DumpFile:       cfg.Engine.DumpFile,
	})
	slog.Info("Engine ready", slog.String("session", b.Engine.SessionID()), slog.String("url", cfg.Server.WSURL))

	return nil
}

// NewDialer builds the websocket transport for cfg.
func NewDialer(cfg *infra.Config) engine.Dialer {
	d := ws.NewDialer(ws.Config{
		URL:              cfg.Server.WSURL,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		PingInterval:     cfg.PingInterval(),
		ReadTimeout:      cfg.ReadTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
	})
	return engine.DialFunc(func(ctx context.Context, token string) (engine.Conn, error) {
		conn, err := d.Dial(ctx, token)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// ServeMetrics exposes /metrics until ctx is done. It returns immediately when no address is set.
func (b *Bootstrap) ServeMetrics(ctx context.Context) {
	addr := b.Config.Metrics.Addr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", b.Metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics server started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server failed", slog.Any("error", err))
	}
}

// Close releases storage.
func (b *Bootstrap) Close() {
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Failed to close storage", slog.Any("error", err))
		}
	}
}
