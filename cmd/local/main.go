package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"kinobot/internal/app"
	"kinobot/internal/config"
	"kinobot/internal/logging"
)

// Local development entry: reads .env and always long-polls, even when
// WEBHOOK_URL is configured for production.
func main() {
	boot := logging.New("kinobot-local", "debug", "")
	if err := config.LoadDotEnv(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn("read .env failed", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error("config failed", "error", err)
		os.Exit(1)
	}
	cfg.WebhookURL = ""
	log := logging.New("kinobot-local", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("polling failed", "error", err)
	}
}
