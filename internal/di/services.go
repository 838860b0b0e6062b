package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/degiro-portfolio/degiro-portfolio/internal/clients/ecb"
	"github.com/degiro-portfolio/degiro-portfolio/internal/clients/exchangerate"
	"github.com/degiro-portfolio/degiro-portfolio/internal/clients/twelvedata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/clients/yahoo"
	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/events"
	"github.com/degiro-portfolio/degiro-portfolio/internal/importer"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/charts"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/portfolio"
	"github.com/degiro-portfolio/degiro-portfolio/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeServices creates the event bus, external clients and services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Loader = portfolio.NewLoader(container.DB, log)
	container.PortfolioService = portfolio.NewService(container.DB, container.Loader, container.EventManager, log)
	container.ImportService = importer.NewService(container.DB, container.EventManager, log)
	container.ChartsService = charts.NewService(container.Loader, log)

	// Yahoo always serves ISIN lookups, even when Twelve Data provides prices
	yahooClient := yahoo.NewClient(log)
	var provider marketdata.PriceProvider = yahooClient
	if cfg.PriceProvider == config.ProviderTwelveData {
		provider = twelvedata.NewClient("", cfg.TwelveDataAPIKey, cfg.TwelveDataRatePerMinute, log)
	}

	container.MarketDataService = marketdata.NewService(marketdata.Deps{
		Stocks:       container.StockRepo,
		Transactions: container.TransactionRepo,
		Prices:       container.PriceRepo,
		Indices:      container.IndexRepo,
		Rates:        container.RateRepo,
		Provider:     provider,
		Resolver:     marketdata.NewTickerResolver(yahooClient, provider, log),
		ECB:          ecb.NewClient(cfg.ECBAPIURL, log),
		Latest:       exchangerate.NewClient(cfg.ExchangeRateAPIURL, container.ClientDataRepo, log),
		Cache:        container.ClientDataRepo,
		Events:       container.EventManager,
		HistoryStart: cfg.HistoryStartDate,
	}, log)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			store,
			container.DB,
			filepath.Join(cfg.DataDir, "backup-staging"),
			cfg.Backup.RetentionCount,
			container.EventManager,
			log,
		)
	}

	log.Info().
		Str("price_provider", provider.Name()).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}
