// Package main is the entry point for the DEGIRO portfolio dashboard server.
// It serves the dashboard and JSON API, and runs the background jobs that
// keep market data fresh and back up the database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/di"
	"github.com/degiro-portfolio/degiro-portfolio/internal/server"
	"github.com/degiro-portfolio/degiro-portfolio/internal/version"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/logger"
)

// getEnv retrieves an environment variable value, returning a fallback if the variable
// is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// main is the application entry point:
// 1. Loads configuration from environment variables (.env supported)
// 2. Initializes logging, keeping recent lines for the log API
// 3. Wires all dependencies via the DI container
// 4. Starts the HTTP server and the scheduler
// 5. Waits for a shutdown signal and shuts down gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	version.Version = getEnv("VERSION", version.Version)

	logBuffer := logger.NewRingBuffer(2000)
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Buffer: logBuffer,
	})

	log.Info().
		Str("version", version.Version).
		Str("data_dir", cfg.DataDir).
		Str("price_provider", cfg.PriceProvider).
		Msg("Starting DEGIRO Portfolio")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		Config:    cfg,
		LogBuffer: logBuffer,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	if cfg.SchedulerEnabled {
		container.Scheduler.Start()
		log.Info().Int("jobs", len(container.Scheduler.Status())).Msg("Scheduler started")
	} else {
		log.Info().Msg("Scheduler disabled, jobs only run on demand")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
