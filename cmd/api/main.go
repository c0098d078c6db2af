// Command api is the HomeQuest notification service.
//
// Usage:
//
//	homequest-notify-api
//	API_PORT=8080 homequest-notify-api

// @title HomeQuest Notification API
// @version 1.0.0
// @description Turns family-activity domain events into delivered push notifications: preference resolution, milestone detection, scheduling, fan-out dispatch, token health, and delivery stats.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/homequest/homequest-notify/internal/api"
	"github.com/homequest/homequest-notify/internal/api/handler"
	"github.com/homequest/homequest-notify/internal/cache"
	"github.com/homequest/homequest-notify/internal/config"
	"github.com/homequest/homequest-notify/internal/db"
	"github.com/homequest/homequest-notify/internal/listener"
	"github.com/homequest/homequest-notify/internal/notify"
	"github.com/homequest/homequest-notify/internal/push"
	"github.com/homequest/homequest-notify/internal/store/postgres"
	"github.com/homequest/homequest-notify/internal/worker"

	_ "github.com/homequest/homequest-notify/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Stores and core service
	store := postgres.New(pool.Pool)
	var sender push.Sender
	if fcm := push.NewFCMSender(cfg.FCMCredentialsFile, logger); fcm != nil {
		sender = fcm
	}
	svc := notify.NewService(store, store, store, store, sender, logger)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Background workers
	workerCfg := worker.Config{
		DispatchInterval:  cfg.DispatchInterval,
		DispatchBatchSize: cfg.DispatchBatchSize,
		DispatchWorkers:   cfg.DispatchWorkers,
		ReminderInterval:  cfg.ReminderInterval,
		ReminderWindow:    24 * time.Hour,
		DigestInterval:    cfg.DigestInterval,
		CleanupInterval:   cfg.CleanupInterval,
	}
	if sender != nil {
		go worker.StartDispatch(ctx, svc, workerCfg, logger)
	} else {
		logger.Info("Dispatch worker disabled (no FIREBASE_CREDENTIALS_FILE)")
	}
	go worker.Start(ctx, svc, store, workerCfg, logger)

	// Real-time domain event consumer
	go listener.Start(ctx, cfg.DatabaseURL, svc, logger)

	// Router and HTTP server
	h := handler.New(svc, store, store, store, pool, appCache, cfg, notify.DefaultTable())
	router := api.NewRouter(h, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting HomeQuest Notification API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
