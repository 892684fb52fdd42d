package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/nlhi-service/internal/config"
	"github.com/couchcryptid/nlhi-service/internal/observability"
	"github.com/couchcryptid/nlhi-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := service.Run(ctx, cfg, logger); err != nil {
		logger.Error("service error", "error", err)
		os.Exit(1)
	}
}
