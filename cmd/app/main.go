package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"market_sync/internal/app"
	"market_sync/internal/domain"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Metrics endpoint
	go bootstrap.ServeMetrics(ctx)

	// 4. Engine loop
	eng := bootstrap.Engine
	console := app.NewConsole(eng, bootstrap.Credentials, bootstrap.Storage, os.Stdout)
	unsubscribe := eng.Subscribe(console.OnNotification)
	defer unsubscribe()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		eng.Run(ctx)
	}()
	slog.InfoContext(ctx, "Engine loop started")

	// 5. Session
	if err := eng.Start(ctx); err != nil {
		if domain.IsAuthError(err) {
			slog.Warn("No usable credential; use `login <token>`", slog.Any("error", err))
		} else {
			slog.Error("Failed to start session", slog.Any("error", err))
		}
	}

	// 6. Commands from stdin until EOF or signal
	go func() {
		if err := console.Run(ctx, os.Stdin); err != nil {
			slog.Error("Console stopped", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down gracefully...")
	<-runDone
}
