// Package config loads the tidemark YAML configuration and applies
// environment variable overrides on top of it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for tidemark.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Data     DataConfig     `yaml:"data"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Gather   GatherConfig   `yaml:"gather"`
	Backtest BacktestConfig `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DataConfig describes where the daily bars for a run come from. CSV sources
// carry a per-file column mapping so differently shaped exports can be
// loaded without reformatting.
type DataConfig struct {
	Daily     []CSVSource `yaml:"daily"`
	Benchmark []CSVSource `yaml:"benchmark"`
}

// CSVSource is one CSV file of daily bars plus the names of its columns.
// Symbol is used for single-symbol files that carry no symbol column.
type CSVSource struct {
	Path    string     `yaml:"path"`
	Symbol  string     `yaml:"symbol"`
	Columns CSVColumns `yaml:"columns"`
}

// CSVColumns maps bar fields to CSV header names. Date and Close are
// required; the rest are optional and default to zero when unmapped.
type CSVColumns struct {
	Date   string `yaml:"date"`
	Symbol string `yaml:"symbol"`
	Open   string `yaml:"open"`
	High   string `yaml:"high"`
	Low    string `yaml:"low"`
	Close  string `yaml:"close"`
	Volume string `yaml:"volume"`
}

// Alpaca holds credentials and endpoints for the Alpaca data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// GatherConfig controls the daily-bar gather job.
type GatherConfig struct {
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	MaxRetries      int      `yaml:"max_retries"`
}

// BacktestConfig defines the simulation parameters for one run.
type BacktestConfig struct {
	InitialCash            float64 `yaml:"initial_cash"`
	ExecutionOrder         string  `yaml:"execution_order"` // "sell_first" (default) or "buy_first"
	DrawdownIntervalMonths int     `yaml:"drawdown_interval_months"`
}

// StrategyConfig selects and parameterizes the strategy for a run.
type StrategyConfig struct {
	Name       string  `yaml:"name"`
	BuyWindow  int     `yaml:"buy_window"`
	SellWindow int     `yaml:"sell_window"`
	BuyBias    float64 `yaml:"buy_bias"`
	SellBias   float64 `yaml:"sell_bias"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, fills defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the run code cannot act on.
func (c *Config) Validate() error {
	if c.Backtest.InitialCash < 0 {
		return fmt.Errorf("config: initial_cash must not be negative, got %f", c.Backtest.InitialCash)
	}
	switch c.Backtest.ExecutionOrder {
	case "sell_first", "buy_first":
	default:
		return fmt.Errorf("config: execution_order must be sell_first or buy_first, got %q", c.Backtest.ExecutionOrder)
	}
	if c.Backtest.DrawdownIntervalMonths <= 0 {
		return fmt.Errorf("config: drawdown_interval_months must be positive, got %d", c.Backtest.DrawdownIntervalMonths)
	}
	for i, src := range append(append([]CSVSource{}, c.Data.Daily...), c.Data.Benchmark...) {
		if src.Path == "" {
			return fmt.Errorf("config: data source %d has no path", i)
		}
		if src.Columns.Date == "" || src.Columns.Close == "" {
			return fmt.Errorf("config: data source %q must map the date and close columns", src.Path)
		}
	}
	return nil
}

// applyDefaults fills the fields a minimal config file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Backtest.InitialCash == 0 {
		cfg.Backtest.InitialCash = 1_000_000
	}
	if cfg.Backtest.ExecutionOrder == "" {
		cfg.Backtest.ExecutionOrder = "sell_first"
	}
	if cfg.Backtest.DrawdownIntervalMonths == 0 {
		cfg.Backtest.DrawdownIntervalMonths = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Gather.RateLimitPerMin == 0 {
		cfg.Gather.RateLimitPerMin = 200
	}
	if cfg.Gather.MaxRetries == 0 {
		cfg.Gather.MaxRetries = 3
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
