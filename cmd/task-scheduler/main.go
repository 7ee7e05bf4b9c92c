package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintask/internal/amqp"
	"fintask/internal/config"
	"fintask/internal/scheduler"
	"fintask/internal/services"
	"fintask/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting task-scheduler")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	if !cfg.SchedulerEnabled {
		logger.Info("Scheduler disabled via SCHEDULER_ENABLED, exiting")
		return
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without event publishing", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	generator := services.NewTaskGenerator(repo, repo, publisher)
	monthly := scheduler.NewMonthly(repo, generator, cfg.SchedulerConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monthly.Start(ctx)
	logger.Info("Scheduler started", "concurrency", cfg.SchedulerConcurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	monthly.Stop()
	logger.Info("Scheduler stopped gracefully")
}
