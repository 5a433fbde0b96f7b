package config

import (
	"os"
	"path/filepath"
	"testing"

	"panelsim/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "panelsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "PANELSIM_RISK_FREE_RATE",
		"ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_DATA_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/panelsim/data"
  sqlite_path: "/tmp/panelsim/runs.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
logging:
  level: "debug"
  format: "json"
gather:
  tickers_csv: "tickers.csv"
  batch_size: 500
backtest:
  strategies: ["equal-weight", "ols-ratios"]
  frequency: monthly
  start_date: "2010-01-04"
  end_date: "2015-12-31"
  initial_value: 1000
  max_long: 1
  max_short: 0.5
  risk_free_rate: 0.02
  exclude: ["ZZZ", "YYY"]
telemetry:
  textfile_path: "/tmp/panelsim.prom"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/panelsim/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/panelsim/data")
	}
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca.Feed = %q, want default %q", cfg.Alpaca.Feed, "sip")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Gather.BatchSize != 500 || cfg.Gather.MaxWorkers != 4 {
		t.Errorf("Gather = %+v, want batch 500 and default workers 4", cfg.Gather)
	}
	if len(cfg.Backtest.Strategies) != 2 || cfg.Backtest.Strategies[1] != "ols-ratios" {
		t.Errorf("Backtest.Strategies = %v", cfg.Backtest.Strategies)
	}
	if len(cfg.Backtest.Exclude) != 2 || cfg.Backtest.Exclude[0] != "ZZZ" {
		t.Errorf("Backtest.Exclude = %v", cfg.Backtest.Exclude)
	}
	if cfg.Telemetry.TextfilePath != "/tmp/panelsim.prom" {
		t.Errorf("Telemetry.TextfilePath = %q", cfg.Telemetry.TextfilePath)
	}

	sim, err := cfg.Backtest.SimConfig()
	if err != nil {
		t.Fatalf("SimConfig: %v", err)
	}
	if sim.Frequency != domain.FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", sim.Frequency)
	}
	if domain.FormatDate(sim.Start) != "2010-01-04" || domain.FormatDate(sim.End) != "2015-12-31" {
		t.Errorf("range = %s..%s", domain.FormatDate(sim.Start), domain.FormatDate(sim.End))
	}
	if sim.Portfolio.InitialValue != 1000 || sim.Portfolio.MaxShort != 0.5 || sim.RiskFreeRate != 0.02 {
		t.Errorf("sim = %+v", sim)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	b := cfg.Backtest
	if b.Frequency != "yearly" || b.StartDate != "2005-01-04" || b.EndDate != "2022-05-11" {
		t.Errorf("Backtest = %+v", b)
	}
	if b.InitialValue != 100 || b.MaxLong != 100 || b.MaxShort != 100 || b.RiskFreeRate != 0.01 {
		t.Errorf("Backtest = %+v", b)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ALPACA_API_KEY", "legacy")
	t.Setenv("APCA_API_KEY_ID", "canonical")
	t.Setenv("PANELSIM_RISK_FREE_RATE", "0.03")

	cfg, err := Load(writeConfig(t, "storage:\n  data_dir: /file/data\n"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Alpaca.APIKey != "canonical" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "canonical")
	}
	if cfg.Backtest.RiskFreeRate != 0.03 {
		t.Errorf("RiskFreeRate = %v, want 0.03", cfg.Backtest.RiskFreeRate)
	}

	t.Setenv("PANELSIM_RISK_FREE_RATE", "lots")
	if _, err := Load(""); err == nil {
		t.Error("non-numeric PANELSIM_RISK_FREE_RATE should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"no data dir", func(c *Config) { c.Storage.DataDir = "" }, false},
		{"bad frequency", func(c *Config) { c.Backtest.Frequency = "hourly" }, false},
		{"bad start", func(c *Config) { c.Backtest.StartDate = "2020/01/01" }, false},
		{"inverted range", func(c *Config) { c.Backtest.EndDate = "2000-01-01" }, false},
		{"zero initial value", func(c *Config) { c.Backtest.InitialValue = 0 }, false},
		{"negative workers", func(c *Config) { c.Backtest.Workers = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok %v", err, tt.ok)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
