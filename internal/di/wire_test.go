package di

import (
	"testing"
	"time"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DataDir:            t.TempDir(),
		Port:               8000,
		PriceProvider:      config.ProviderYahoo,
		MarketDataSchedule: "0 30 22 * * 1-5",
		RequestTimeout:     time.Minute,
		HistoryStartDate:   time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.PortfolioService)
	assert.NotNil(t, container.ImportService)
	assert.NotNil(t, container.MarketDataService)
	assert.NotNil(t, container.ChartsService)
	assert.Nil(t, container.BackupService)
	assert.Equal(t, "yahoo", container.MarketDataService.ProviderName())

	assert.Nil(t, jobs.Backup)
	names := []string{}
	for _, status := range container.Scheduler.Status() {
		names = append(names, status.Name)
	}
	assert.Equal(t, []string{"client_data_cleanup", "daily_maintenance", "market_data_refresh", "wal_checkpoint"}, names)
}

func TestWire_TwelveDataAndBackups(t *testing.T) {
	cfg := testConfig(t)
	cfg.PriceProvider = config.ProviderTwelveData
	cfg.TwelveDataAPIKey = "key"
	cfg.TwelveDataRatePerMinute = 8
	cfg.Backup = config.BackupConfig{
		Bucket:          "backups",
		Endpoint:        "http://127.0.0.1:9000",
		Region:          "auto",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		Schedule:        "0 0 3 * * *",
		RetentionCount:  3,
	}

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	assert.Equal(t, "twelvedata", container.MarketDataService.ProviderName())
	assert.NotNil(t, container.BackupService)
	require.NotNil(t, jobs.Backup)
	assert.Len(t, container.Scheduler.Status(), 5)
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.MarketDataSchedule = "sometimes"

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}
