package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentpay/config"
	"agentpay/internal/app"
	"agentpay/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("APAY_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("queue", cfg.Queue.Driver).
		Str("ledger", cfg.Ledger.Driver).
		Msg("Starting agentpay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if err := a.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}
}
