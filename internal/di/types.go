// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/degiro-portfolio/degiro-portfolio/internal/clientdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/degiro-portfolio/degiro-portfolio/internal/importer"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/charts"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/degiro-portfolio/degiro-portfolio/internal/reliability"
	"github.com/degiro-portfolio/degiro-portfolio/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire and shared by the HTTP server and the CLI.
type Container struct {
	// Storage
	DB             *database.DB
	ClientDataRepo *clientdata.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	StockRepo       *portfolio.StockRepository
	TransactionRepo *portfolio.TransactionRepository
	PriceRepo       *marketdata.PriceRepository
	IndexRepo       *marketdata.IndexRepository
	RateRepo        *marketdata.RateRepository

	// Services
	Loader            *portfolio.Loader
	PortfolioService  *portfolio.Service
	ImportService     *importer.Service
	MarketDataService *marketdata.Service
	ChartsService     *charts.Service

	// BackupService is nil when no bucket is configured
	BackupService *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	MarketDataRefresh scheduler.Job
	WALCheckpoint     scheduler.Job
	DailyMaintenance  scheduler.Job
	ClientDataCleanup scheduler.Job
	Backup            scheduler.Job // nil when backups are disabled
}

// Close stops the scheduler and closes the database
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
