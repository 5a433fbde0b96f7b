package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"panelsim/internal/domain"
	"panelsim/internal/portfolio"
	"panelsim/internal/simulator"
)

// EnvConfigPath names the environment variable holding the config file path
// used when no -config flag is given.
const EnvConfigPath = "PANELSIM_CONFIG"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for panelsim.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Gather    Gather    `yaml:"gather"`
	Backtest  Backtest  `yaml:"backtest"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Gather controls panel gathering.
type Gather struct {
	TickersCSV      string `yaml:"tickers_csv"`
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// Backtest holds the default simulation parameters.
type Backtest struct {
	Strategies   []string `yaml:"strategies"`
	Frequency    string   `yaml:"frequency"`
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	InitialValue float64  `yaml:"initial_value"`
	MaxLong      float64  `yaml:"max_long"`
	MaxShort     float64  `yaml:"max_short"`
	RiskFreeRate float64  `yaml:"risk_free_rate"`
	Workers      int      `yaml:"workers"`
	// Exclude lists tickers dropped from the panel before any run.
	Exclude []string `yaml:"exclude"`
}

// Telemetry configures the Prometheus textfile written after a run.
type Telemetry struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/runs.db",
		},
		Alpaca: Alpaca{
			Feed: "sip",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Gather: Gather{
			StartDate:       "2016-01-01",
			BatchSize:       100,
			MaxWorkers:      4,
			RateLimitPerMin: 200,
			MaxAttempts:     3,
		},
		Backtest: Backtest{
			Strategies:   []string{"equal-weight"},
			Frequency:    string(domain.FrequencyYearly),
			StartDate:    "2005-01-04",
			EndDate:      "2022-05-11",
			InitialValue: 100,
			MaxLong:      100,
			MaxShort:     100,
			RiskFreeRate: 0.01,
			Workers:      4,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load starts from Default, overlays the YAML file at path (skipped when path
// is empty) and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PANELSIM_RISK_FREE_RATE"); v != "" {
		rf, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PANELSIM_RISK_FREE_RATE: %w", err)
		}
		cfg.Backtest.RiskFreeRate = rf
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars take priority; the SDK reads the same names.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the backtest section and storage paths.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if _, err := c.Backtest.SimConfig(); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	if c.Backtest.Workers < 0 {
		return fmt.Errorf("backtest.workers %d is negative", c.Backtest.Workers)
	}
	return nil
}

// SimConfig converts the backtest section into a validated simulator
// configuration.
func (b Backtest) SimConfig() (simulator.Config, error) {
	freq, err := domain.ParseFrequency(b.Frequency)
	if err != nil {
		return simulator.Config{}, err
	}
	start, err := domain.ParseDate(b.StartDate)
	if err != nil {
		return simulator.Config{}, err
	}
	end, err := domain.ParseDate(b.EndDate)
	if err != nil {
		return simulator.Config{}, err
	}
	cfg := simulator.Config{
		Frequency: freq,
		Start:     start,
		End:       end,
		Portfolio: portfolio.Config{
			InitialValue: b.InitialValue,
			MaxLong:      b.MaxLong,
			MaxShort:     b.MaxShort,
		},
		RiskFreeRate: b.RiskFreeRate,
	}
	if err := cfg.Validate(); err != nil {
		return simulator.Config{}, err
	}
	return cfg, nil
}
