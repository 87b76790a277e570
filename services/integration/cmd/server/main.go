package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raqmix/kippis-possync/pkg/logger"
	"github.com/raqmix/kippis-possync/services/integration/internal/app"
	"github.com/raqmix/kippis-possync/services/integration/internal/config"
)

func main() {
	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize structured logger.
	log := logger.New("integration-service", cfg.LogLevel)
	log.Info("starting integration service",
		slog.String("environment", cfg.Environment),
		slog.String("provider_mode", string(cfg.Provider.Mode)),
		slog.Int("http_port", cfg.HTTPPort),
		slog.Int("sync_interval_minutes", cfg.SyncIntervalMinutes),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled()),
	)

	// Create the application with all dependencies wired.
	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is cancelled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("integration service stopped")
}
