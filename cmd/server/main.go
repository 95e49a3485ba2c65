// Package main is the entry point of the portfolio tracker.
// It values positions from incoming prices, freezes them into an append-only
// snapshot history on configurable cadences and serves the history over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/tracker/internal/clients/pricefeed"
	"github.com/aristath/tracker/internal/config"
	"github.com/aristath/tracker/internal/di"
	"github.com/aristath/tracker/internal/server"
	"github.com/aristath/tracker/pkg/logger"
)

// main orchestrates startup:
// 1. Loads configuration (environment and .env)
// 2. Initializes logging
// 3. Wires databases, repositories, services and jobs
// 4. Starts the scheduler, the price feed and the HTTP server
// 5. Waits for SIGINT / SIGTERM and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("time_zone", cfg.TimeZone).
		Int("cadences", len(cfg.SnapshotCadences)).
		Msg("Starting tracker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire all dependencies. Nothing runs until started below.
	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	// Cadences start ticking in the configured time zone
	container.Scheduler.Start()
	for _, entry := range container.Scheduler.Entries() {
		log.Info().Str("job", entry.Job).Str("schedule", entry.Schedule).Time("next", entry.Next).Msg("Job scheduled")
	}

	// The feed only forwards (symbol, price) pairs to the propagator
	if err := container.PriceFeed.Start(ctx); err != nil && !errors.Is(err, pricefeed.ErrDisabled) {
		log.Error().Err(err).Msg("Failed to start price feed")
	}

	srv := server.New(server.Config{
		Log:       log,
		Location:  cfg.Location,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop accepting requests first; in-flight requests get up to 10 seconds
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Closing the container stops the feed and waits for running jobs before
	// the databases are closed
	cancel()
	log.Info().Msg("Server stopped")
}
