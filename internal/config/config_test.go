package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("PRICE_PROVIDER", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, ProviderYahoo, cfg.PriceProvider)
	assert.Equal(t, "0 30 22 * * 1-5", cfg.MarketDataSchedule)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), cfg.HistoryStartDate)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, dir+"/portfolio.db", cfg.DatabasePath())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("PORT", "9100")
	t.Setenv("PRICE_PROVIDER", "TwelveData")
	t.Setenv("TWELVEDATA_API_KEY", "key")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, ProviderTwelveData, cfg.PriceProvider)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_InvalidHistoryStart(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("HISTORY_START_DATE", "01/01/2015")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 8000, PriceProvider: ProviderYahoo, TwelveDataRatePerMinute: 8}
	}

	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid yahoo", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"unknown provider", func(c *Config) { c.PriceProvider = "alphavantage" }, true},
		{"twelvedata without key", func(c *Config) { c.PriceProvider = ProviderTwelveData }, true},
		{"twelvedata with key", func(c *Config) {
			c.PriceProvider = ProviderTwelveData
			c.TwelveDataAPIKey = "abc"
		}, false},
		{"backup without credentials", func(c *Config) { c.Backup.Bucket = "backups" }, true},
		{"backup complete", func(c *Config) {
			c.Backup = BackupConfig{Bucket: "backups", AccessKeyID: "id", SecretAccessKey: "secret", RetentionCount: 3}
		}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
