package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds every runtime setting for the engine.
// Sensitive or environment-specific values can be overridden via env vars
// after the file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Providers struct {
		FetchTimeoutSec int `yaml:"fetch_timeout_sec"`

		Binance struct {
			URL        string  `yaml:"url"`
			RatePerSec float64 `yaml:"rate_per_sec"`
			RateBurst  int     `yaml:"rate_burst"`
			Enabled    bool    `yaml:"enabled"`
		} `yaml:"binance"`

		Huobi struct {
			URL        string  `yaml:"url"`
			RatePerSec float64 `yaml:"rate_per_sec"`
			RateBurst  int     `yaml:"rate_burst"`
			Enabled    bool    `yaml:"enabled"`
		} `yaml:"huobi"`

		OKX struct {
			WSURL   string `yaml:"ws_url"`
			Enabled bool   `yaml:"enabled"`
		} `yaml:"okx"`
	} `yaml:"providers"`

	Aggregation struct {
		IntervalSec int `yaml:"interval_sec"`
	} `yaml:"aggregation"`

	Maintenance struct {
		IntervalHours        int `yaml:"interval_hours"`
		HistoryRetentionDays int `yaml:"history_retention_days"`
	} `yaml:"maintenance"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses a YAML config file, applies env overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// FetchTimeout is the independent per-provider timeout for one refresh round.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Providers.FetchTimeoutSec) * time.Second
}

// AggregationInterval is the fixed period of the background refresh cycle.
func (c *Config) AggregationInterval() time.Duration {
	return time.Duration(c.Aggregation.IntervalSec) * time.Second
}

// MaintenanceInterval is the period of the housekeeping sweep.
func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.Maintenance.IntervalHours) * time.Hour
}

// HistoryRetention is how long admitted quotes are kept before purge.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Maintenance.HistoryRetentionDays) * 24 * time.Hour
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/crypto_trade.db"
	}
	if cfg.Providers.FetchTimeoutSec <= 0 {
		cfg.Providers.FetchTimeoutSec = 5
	}
	if cfg.Aggregation.IntervalSec <= 0 {
		cfg.Aggregation.IntervalSec = 10
	}
	if cfg.Maintenance.IntervalHours <= 0 {
		cfg.Maintenance.IntervalHours = 24
	}
	if cfg.Maintenance.HistoryRetentionDays <= 0 {
		cfg.Maintenance.HistoryRetentionDays = 30
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Providers.Binance.Enabled && !strings.HasPrefix(c.Providers.Binance.URL, "http://") && !strings.HasPrefix(c.Providers.Binance.URL, "https://") {
		return fmt.Errorf("invalid Binance URL: %s", c.Providers.Binance.URL)
	}
	if c.Providers.Huobi.Enabled && !strings.HasPrefix(c.Providers.Huobi.URL, "http://") && !strings.HasPrefix(c.Providers.Huobi.URL, "https://") {
		return fmt.Errorf("invalid Huobi URL: %s", c.Providers.Huobi.URL)
	}
	if c.Providers.OKX.Enabled && !strings.HasPrefix(c.Providers.OKX.WSURL, "ws://") && !strings.HasPrefix(c.Providers.OKX.WSURL, "wss://") {
		return fmt.Errorf("invalid OKX WS URL: %s", c.Providers.OKX.WSURL)
	}
	if !c.Providers.Binance.Enabled && !c.Providers.Huobi.Enabled && !c.Providers.OKX.Enabled {
		return fmt.Errorf("at least one price provider must be enabled")
	}
	return nil
}

// overrideWithEnv replaces config values with env vars when present.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("CRYPTO_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("CRYPTO_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if level := os.Getenv("CRYPTO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
