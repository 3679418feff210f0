package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"classdesk/internal/api"
	"classdesk/internal/config"
	"classdesk/internal/countdown"
	"classdesk/internal/deleter"
	"classdesk/internal/monitoring"
	"classdesk/internal/refresh"
	"classdesk/internal/store"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared per-profile store
	st, err := store.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	// Monitoring, refresh fan-out, delete executor
	metrics := monitoring.NewMetrics()
	signals := refresh.NewBroadcaster()
	delClient := deleter.NewClient(cfg.APIBaseURL, cfg.APIToken, nil, logger)

	// Core countdown controller
	controller := countdown.New(st, delClient, signals, metrics, logger, countdown.Options{
		TickInterval:  time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		DefaultWindow: time.Duration(cfg.UndoWindowSeconds) * time.Second,
	})
	defer controller.Close()

	// Pick up a countdown left behind by an earlier run
	if err := controller.Restore(ctx); err != nil {
		logger.Fatal("failed to restore pending delete", zap.Error(err))
	}

	// Mirror sibling instances of the same profile
	go func() {
		if err := controller.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("store watch stopped", zap.Error(err))
		}
	}()

	// Local API server
	server := api.NewServer(cfg, controller, st, signals, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("agent started",
		zap.String("port", cfg.AgentPort),
		zap.String("profile", cfg.Profile),
		zap.String("store_backend", cfg.StoreBackend))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agent...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("agent exiting")
}
