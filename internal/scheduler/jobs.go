package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// MarketDataUpdater refreshes prices, indices and exchange rates
type MarketDataUpdater interface {
	UpdateAll(ctx context.Context) (*marketdata.UpdateResult, error)
}

// MarketDataRefreshJob runs a full market data update
type MarketDataRefreshJob struct {
	updater MarketDataUpdater
	timeout time.Duration
	log     zerolog.Logger
}

// NewMarketDataRefreshJob creates a market data refresh job
func NewMarketDataRefreshJob(updater MarketDataUpdater, timeout time.Duration, log zerolog.Logger) *MarketDataRefreshJob {
	return &MarketDataRefreshJob{
		updater: updater,
		timeout: timeout,
		log:     log.With().Str("job", "market_data_refresh").Logger(),
	}
}

// Name returns the job name
func (j *MarketDataRefreshJob) Name() string {
	return "market_data_refresh"
}

// Run executes the update. An update already started through the API is not an error.
func (j *MarketDataRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.updater.UpdateAll(ctx)
	if errors.Is(err, marketdata.ErrUpdateInProgress) {
		j.log.Info().Msg("Update already running, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("market data refresh failed: %w", err)
	}

	j.log.Info().
		Int("prices", result.PricesInserted).
		Int("index_prices", result.IndexPrices).
		Int("rates", result.RatesStored).
		Int("errors", len(result.Errors)).
		Msg("Market data refreshed")
	return nil
}
