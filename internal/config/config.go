// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported price providers
const (
	ProviderYahoo      = "yahoo"
	ProviderTwelveData = "twelvedata"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Directory holding portfolio.db (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	PriceProvider           string
	TwelveDataAPIKey        string
	TwelveDataRatePerMinute int
	ExchangeRateAPIURL      string
	ECBAPIURL               string
	HistoryStartDate        time.Time // Earliest date fetched for indices and rates

	SchedulerEnabled   bool
	MarketDataSchedule string // cron expression with seconds field
	RequestTimeout     time.Duration

	Backup BackupConfig
}

// BackupConfig holds S3 compatible backup settings (AWS S3 or Cloudflare R2)
type BackupConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionCount  int
}

// Enabled reports whether a bucket was configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// DatabasePath returns the location of the SQLite database file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	historyStart, err := time.Parse("2006-01-02", getEnv("HISTORY_START_DATE", "2015-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_START_DATE: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("PORT", 8000),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		PriceProvider:           strings.ToLower(getEnv("PRICE_PROVIDER", ProviderYahoo)),
		TwelveDataAPIKey:        getEnv("TWELVEDATA_API_KEY", ""),
		TwelveDataRatePerMinute: getEnvAsInt("TWELVEDATA_RATE_PER_MINUTE", 8),
		ExchangeRateAPIURL:      getEnv("EXCHANGERATE_API_URL", "https://api.exchangerate-api.com/v4/latest"),
		ECBAPIURL:               getEnv("ECB_API_URL", "https://data-api.ecb.europa.eu/service/data/EXR"),
		HistoryStartDate:        historyStart,

		SchedulerEnabled:   getEnvAsBool("SCHEDULER_ENABLED", true),
		MarketDataSchedule: getEnv("MARKET_DATA_SCHEDULE", "0 30 22 * * 1-5"),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),

		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionCount:  getEnvAsInt("BACKUP_RETENTION_COUNT", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}

	switch c.PriceProvider {
	case ProviderYahoo:
	case ProviderTwelveData:
		if c.TwelveDataAPIKey == "" {
			return fmt.Errorf("TWELVEDATA_API_KEY is required when PRICE_PROVIDER=%s", ProviderTwelveData)
		}
		if c.TwelveDataRatePerMinute <= 0 {
			return fmt.Errorf("TWELVEDATA_RATE_PER_MINUTE must be positive")
		}
	default:
		return fmt.Errorf("unknown PRICE_PROVIDER %q (expected %s or %s)", c.PriceProvider, ProviderYahoo, ProviderTwelveData)
	}

	if c.Backup.Enabled() {
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup bucket %q configured without credentials", c.Backup.Bucket)
		}
		if c.Backup.RetentionCount < 1 {
			return fmt.Errorf("BACKUP_RETENTION_COUNT must be at least 1")
		}
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
