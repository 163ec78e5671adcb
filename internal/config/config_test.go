package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TrendSentinel/internal/model"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if cfg.BiasTF() != model.TF4h || cfg.EntryTF() != model.TF15m {
		t.Fatalf("unexpected timeframes %s/%s", cfg.BiasTF(), cfg.EntryTF())
	}
	if len(cfg.Strategy.Symbols) != 2 || cfg.Strategy.Symbols[1] != "USDJPY" {
		t.Fatalf("unexpected symbols %v", cfg.Strategy.Symbols)
	}
	if cfg.Strategy.MaxStopPips != 80 || cfg.Strategy.TwoBarRatio != 3 || cfg.Strategy.OneBarRatio != 2 {
		t.Fatalf("unexpected strategy params %+v", cfg.Strategy)
	}
	if cfg.Execution.BackoffBase != 250*time.Millisecond || cfg.Execution.BackoffStep != 50*time.Millisecond || cfg.Execution.BackoffMax != 3*time.Second {
		t.Fatalf("unexpected backoff %s/%s/%s", cfg.Execution.BackoffBase, cfg.Execution.BackoffStep, cfg.Execution.BackoffMax)
	}
	if cfg.Execution.Accounts[0].Leverage != 500 {
		t.Fatalf("unexpected account %+v", cfg.Execution.Accounts[0])
	}
	if cfg.DataSource.SymbolMap["EURUSD"] != "EURUSD=X" {
		t.Fatalf("unexpected symbol map %v", cfg.DataSource.SymbolMap)
	}

	jpy := cfg.Instrument("USDJPY")
	if jpy.PipSize != 0.01 || jpy.PipScale() != 100 {
		t.Fatalf("unexpected USDJPY instrument %+v", jpy)
	}
	if cfg.Instrument("XAUUSD") != model.DefaultInstrument("XAUUSD") {
		t.Fatalf("unknown symbols must fall back to the unit contract")
	}
	if len(cfg.InstrumentMap()) != 2 {
		t.Fatalf("unexpected instrument map %v", cfg.InstrumentMap())
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Execution.Mode != ModeSignal || cfg.Execution.MaxRetries != 1000 || cfg.Execution.ShutdownTimeout != 30*time.Second {
		t.Errorf("unexpected execution defaults %+v", cfg.Execution)
	}
	if cfg.Risk.MarginSafety != 0.8 || cfg.Strategy.BiasWindow != 3 || cfg.Execution.Timezone != "America/New_York" {
		t.Errorf("unexpected defaults")
	}
	// rest provider without a base URL
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error without data_source.base_url")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "paper")
	t.Setenv("RISK_FRACTION", "0.005")
	t.Setenv("BAR_FEED_BASE_URL", "http://env.example")
	t.Setenv("BROKER_TOKEN", "secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Execution.Mode != ModePaper || cfg.Risk.RiskFraction != 0.005 || cfg.LogLevel != "debug" {
		t.Errorf("env overrides not applied: mode=%s risk=%v level=%s", cfg.Execution.Mode, cfg.Risk.RiskFraction, cfg.LogLevel)
	}
	if cfg.DataSource.BaseURL != "http://env.example" || cfg.Execution.Accounts[0].Token != "secret" {
		t.Errorf("env overrides not applied: %s %s", cfg.DataSource.BaseURL, cfg.Execution.Accounts[0].Token)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(filepath.Join("testdata", "config.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"half telegram", func(c *Config) { c.Telegram.ChatID = "" }, "set together"},
		{"bad timeframe", func(c *Config) { c.Strategy.BiasTimeframe = "2hour" }, "bias_timeframe"},
		{"entry coarser", func(c *Config) { c.Strategy.EntryTimeframe = "1day" }, "coarser"},
		{"window", func(c *Config) { c.Strategy.BiasWindow = 1 }, "bias_window"},
		{"risk", func(c *Config) { c.Risk.RiskFraction = 2 }, "risk_fraction"},
		{"mode", func(c *Config) { c.Execution.Mode = "yolo" }, "execution.mode"},
		{"live without accounts", func(c *Config) { c.Execution.Accounts = nil }, "accounts"},
		{"hours", func(c *Config) { c.Execution.TradingStartHour = 12 }, "trading hours"},
		{"timezone", func(c *Config) { c.Execution.Timezone = "Mars/Olympus" }, "timezone"},
		{"store", func(c *Config) { c.BiasStore.Kind = "redis" }, "bias_store"},
		{"provider", func(c *Config) { c.DataSource.Provider = "ftp" }, "provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("strategy: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
