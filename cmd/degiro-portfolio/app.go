package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/di"
	"github.com/degiro-portfolio/degiro-portfolio/pkg/logger"
)

var verbose = flag.Bool("v", false, "Log at debug level")

// app holds what a subcommand needs to talk to the database and providers
type app struct {
	cfg       *config.Config
	container *di.Container
	log       zerolog.Logger
}

// openApp loads configuration and wires the container. Logs go to stderr so
// command output stays clean.
func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{
		Level:  level,
		Pretty: true,
		Output: os.Stderr,
	})

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open portfolio database: %w", err)
	}

	return &app{cfg: cfg, container: container, log: log}, nil
}

// Close releases the database
func (a *app) Close() {
	if err := a.container.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database")
	}
}
