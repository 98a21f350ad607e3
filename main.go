package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kinobot/internal/app"
	"kinobot/internal/config"
	"kinobot/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("kinobot", "info", "").Error("config failed", "error", err)
		os.Exit(1)
	}
	log := logging.New("kinobot", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("bot stopped", "error", err)
		_ = a.Close()
		os.Exit(1)
	}
	log.Info("bot stopped")
}
