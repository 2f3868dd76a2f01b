// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // base directory for the market store and caches, always absolute
	CacheDir string // file cache root, defaults to <DataDir>/cache
	Port     int
	LogLevel string
	DevMode  bool

	APIKey string // empty disables request authentication

	RemoteBaseURL string        // market data gateway, empty runs the service offline
	FetchTimeout  time.Duration // per-request bound on gateway calls

	ReferenceTTL time.Duration // freshness window for reference data
	IntradayTTL  time.Duration // current-day series window, 0 revalidates on every pass

	GraphRefreshSchedule     string // cron expression for the board graph rebuild
	ReferenceRefreshSchedule string // cron expression for the reference data refresh
	CacheSweepSchedule       string // cron expression for the cache sweep
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("MARKETD_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cacheDir := getEnv("MARKETD_CACHE_DIR", "")
	if cacheDir == "" {
		cacheDir = filepath.Join(absDataDir, "cache")
	}

	cfg := &Config{
		DataDir:                  absDataDir,
		CacheDir:                 cacheDir,
		Port:                     getEnvAsInt("MARKETD_PORT", 8010),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DevMode:                  getEnvAsBool("DEV_MODE", false),
		APIKey:                   getEnv("MARKETD_API_KEY", ""),
		RemoteBaseURL:            getEnv("MARKETD_GATEWAY_URL", ""),
		FetchTimeout:             getEnvAsDuration("MARKETD_FETCH_TIMEOUT", 10*time.Second),
		ReferenceTTL:             getEnvAsDuration("MARKETD_REFERENCE_TTL", 24*time.Hour),
		IntradayTTL:              getEnvAsDuration("MARKETD_INTRADAY_TTL", 0),
		GraphRefreshSchedule:     getEnv("MARKETD_GRAPH_REFRESH_SCHEDULE", "0 30 8 * * MON-FRI"),
		ReferenceRefreshSchedule: getEnv("MARKETD_REFERENCE_REFRESH_SCHEDULE", "0 15 8 * * MON-FRI"),
		CacheSweepSchedule:       getEnv("MARKETD_CACHE_SWEEP_SCHEDULE", "@hourly"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ReferenceTTL <= 0 {
		return fmt.Errorf("reference TTL must be positive, got %s", c.ReferenceTTL)
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
