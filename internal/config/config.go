package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"TrendSentinel/internal/model"
)

// Execution modes.
const (
	ModeSignal = "signal" // detect and notify only
	ModePaper  = "paper"  // execute against the simulated broker
	ModeLive   = "live"   // execute against the configured accounts
)

// Account is one broker account signals are executed on.
type Account struct {
	Name     string  `yaml:"name"`
	BaseURL  string  `yaml:"base_url"`
	Token    string  `yaml:"token"`
	Leverage float64 `yaml:"leverage"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
		Name     string `yaml:"name"`
		Polling  bool   `yaml:"polling"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider       string            `yaml:"provider"` // rest, yahoo, csv or mock
		BaseURL        string            `yaml:"base_url"`
		APIKey         string            `yaml:"api_key"`
		CSVDir         string            `yaml:"csv_dir"`
		SymbolMap      map[string]string `yaml:"symbol_map"`
		IncludeForming bool              `yaml:"include_forming"`
	} `yaml:"data_source"`
	Strategy struct {
		Symbols        []string `yaml:"symbols"`
		BiasTimeframe  string   `yaml:"bias_timeframe"`
		EntryTimeframe string   `yaml:"entry_timeframe"`
		BiasWindow     int      `yaml:"bias_window"`
		BiasDepth      int      `yaml:"bias_depth"`
		BiasBars       int      `yaml:"bias_bars"`
		EntryBars      int      `yaml:"entry_bars"`
		TwoBarRatio    float64  `yaml:"two_bar_ratio"`
		OneBarRatio    float64  `yaml:"one_bar_ratio"`
		MaxStopPips    float64  `yaml:"max_stop_pips"`
	} `yaml:"strategy"`
	Risk struct {
		RiskFraction     float64 `yaml:"risk_fraction"`
		MarginSafety     float64 `yaml:"margin_safety"`
		MaxOpenPositions int     `yaml:"max_open_positions"`
	} `yaml:"risk"`
	Execution struct {
		Mode             string        `yaml:"mode"`
		CycleCron        string        `yaml:"cycle_cron"`
		MaxRetries       int           `yaml:"max_retries"`
		BackoffBase      time.Duration `yaml:"backoff_base"`
		BackoffStep      time.Duration `yaml:"backoff_step"`
		BackoffMax       time.Duration `yaml:"backoff_max"`
		TradingStartHour int           `yaml:"trading_start_hour"`
		TradingEndHour   int           `yaml:"trading_end_hour"`
		Timezone         string        `yaml:"timezone"`
		ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
		PaperCapital     float64       `yaml:"paper_capital"`
		PaperLeverage    float64       `yaml:"paper_leverage"`
		PaperSpread      float64       `yaml:"paper_spread"`
		Accounts         []Account     `yaml:"accounts"`
	} `yaml:"execution"`
	Instruments []model.Instrument `yaml:"instruments"`
	BiasStore   struct {
		Kind string `yaml:"kind"` // json or sqlite
		Dir  string `yaml:"dir"`
	} `yaml:"bias_store"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Backtest struct {
		Capital        float64 `yaml:"capital"`
		Leverage       float64 `yaml:"leverage"`
		CommissionRate float64 `yaml:"commission_rate"`
		Slippage       float64 `yaml:"slippage"`
	} `yaml:"backtest"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json or console
	MetricsAddr string `yaml:"metrics_addr"`
	Proxy       string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	_ = godotenv.Load() // best-effort

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("BAR_FEED_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("BAR_FEED_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("MODE"); v != "" {
		cfg.Execution.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RISK_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.RiskFraction = f
		}
	}
	if v := os.Getenv("BROKER_TOKEN"); v != "" {
		for i := range cfg.Execution.Accounts {
			if cfg.Execution.Accounts[i].Token == "" {
				cfg.Execution.Accounts[i].Token = v
			}
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.Name == "" {
		c.Telegram.Name = "TrendSentinel"
	}
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "rest"
	}
	if len(c.Strategy.Symbols) == 0 {
		c.Strategy.Symbols = []string{"EURUSD"}
	}
	if c.Strategy.BiasTimeframe == "" {
		c.Strategy.BiasTimeframe = string(model.TF1h)
	}
	if c.Strategy.EntryTimeframe == "" {
		c.Strategy.EntryTimeframe = string(model.TF15m)
	}
	if c.Strategy.BiasWindow == 0 {
		c.Strategy.BiasWindow = 3
	}
	if c.Strategy.BiasBars == 0 {
		c.Strategy.BiasBars = 50
	}
	if c.Strategy.EntryBars == 0 {
		c.Strategy.EntryBars = 10
	}
	if c.Strategy.TwoBarRatio == 0 {
		c.Strategy.TwoBarRatio = 3
	}
	if c.Strategy.OneBarRatio == 0 {
		c.Strategy.OneBarRatio = 2
	}
	if c.Strategy.MaxStopPips == 0 {
		c.Strategy.MaxStopPips = 100
	}
	if c.Risk.RiskFraction == 0 {
		c.Risk.RiskFraction = 0.02
	}
	if c.Risk.MarginSafety == 0 {
		c.Risk.MarginSafety = 0.8
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = 3
	}
	if c.Execution.Mode == "" {
		c.Execution.Mode = ModeSignal
	}
	if c.Execution.CycleCron == "" {
		c.Execution.CycleCron = "0 * * * * *"
	}
	if c.Execution.MaxRetries == 0 {
		c.Execution.MaxRetries = 1000
	}
	if c.Execution.BackoffBase == 0 {
		c.Execution.BackoffBase = 500 * time.Millisecond
	}
	if c.Execution.BackoffStep == 0 {
		c.Execution.BackoffStep = 50 * time.Millisecond
	}
	if c.Execution.BackoffMax == 0 {
		c.Execution.BackoffMax = 5 * time.Second
	}
	if c.Execution.TradingEndHour == 0 {
		c.Execution.TradingEndHour = 24
	}
	if c.Execution.Timezone == "" {
		c.Execution.Timezone = "America/New_York"
	}
	if c.Execution.ShutdownTimeout == 0 {
		c.Execution.ShutdownTimeout = 30 * time.Second
	}
	if c.Execution.PaperCapital == 0 {
		c.Execution.PaperCapital = 10000
	}
	if c.Execution.PaperLeverage == 0 {
		c.Execution.PaperLeverage = 100
	}
	if c.BiasStore.Kind == "" {
		c.BiasStore.Kind = "json"
	}
	if c.BiasStore.Dir == "" {
		c.BiasStore.Dir = "data/bias"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/trend_sentinel.db"
	}
	if c.Backtest.Capital == 0 {
		c.Backtest.Capital = 10000
	}
	if c.Backtest.CommissionRate == 0 {
		c.Backtest.CommissionRate = 0.0001
	}
	if c.Backtest.Slippage == 0 {
		c.Backtest.Slippage = 0.0001
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	switch c.DataSource.Provider {
	case "rest":
		if c.DataSource.BaseURL == "" {
			return fmt.Errorf("data_source.base_url is required for the rest provider")
		}
	case "csv":
		if c.DataSource.CSVDir == "" {
			return fmt.Errorf("data_source.csv_dir is required for the csv provider")
		}
	case "yahoo", "mock":
	default:
		return fmt.Errorf("data_source.provider %q is not one of rest, yahoo, csv, mock", c.DataSource.Provider)
	}
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols is required")
	}
	biasTF, err := model.ParseTimeframe(c.Strategy.BiasTimeframe)
	if err != nil {
		return fmt.Errorf("strategy.bias_timeframe: %w", err)
	}
	entryTF, err := model.ParseTimeframe(c.Strategy.EntryTimeframe)
	if err != nil {
		return fmt.Errorf("strategy.entry_timeframe: %w", err)
	}
	if entryTF.Duration() > biasTF.Duration() {
		return fmt.Errorf("strategy.entry_timeframe %s is coarser than bias_timeframe %s", entryTF, biasTF)
	}
	if c.Strategy.BiasWindow < 2 {
		return fmt.Errorf("strategy.bias_window must be at least 2")
	}
	if c.Strategy.EntryBars < 3 {
		return fmt.Errorf("strategy.entry_bars must be at least 3")
	}
	if c.Strategy.TwoBarRatio <= 0 || c.Strategy.OneBarRatio <= 0 {
		return fmt.Errorf("strategy reward ratios must be positive")
	}
	if c.Risk.RiskFraction <= 0 || c.Risk.RiskFraction > 1 {
		return fmt.Errorf("risk.risk_fraction must be in (0, 1]")
	}
	if c.Risk.MarginSafety <= 0 || c.Risk.MarginSafety > 1 {
		return fmt.Errorf("risk.margin_safety must be in (0, 1]")
	}
	switch c.Execution.Mode {
	case ModeSignal, ModePaper:
	case ModeLive:
		if len(c.Execution.Accounts) == 0 {
			return fmt.Errorf("execution.accounts is required in live mode")
		}
		for i, a := range c.Execution.Accounts {
			if a.Name == "" || a.BaseURL == "" {
				return fmt.Errorf("execution.accounts[%d]: name and base_url are required", i)
			}
		}
	default:
		return fmt.Errorf("execution.mode %q is not one of signal, paper, live", c.Execution.Mode)
	}
	if c.Execution.TradingStartHour < 0 || c.Execution.TradingEndHour > 24 || c.Execution.TradingStartHour >= c.Execution.TradingEndHour {
		return fmt.Errorf("execution trading hours must satisfy 0 <= start < end <= 24")
	}
	if _, err := time.LoadLocation(c.Execution.Timezone); err != nil {
		return fmt.Errorf("execution.timezone: %w", err)
	}
	for i, in := range c.Instruments {
		if in.Symbol == "" {
			return fmt.Errorf("instruments[%d]: symbol is required", i)
		}
		if in.VolumeMax > 0 && in.VolumeMin > in.VolumeMax {
			return fmt.Errorf("instruments[%d]: volume_min above volume_max", i)
		}
	}
	switch c.BiasStore.Kind {
	case "json", "sqlite":
	default:
		return fmt.Errorf("bias_store.kind %q is not one of json, sqlite", c.BiasStore.Kind)
	}
	return nil
}

// BiasTF returns the parsed bias timeframe. Call after Validate.
func (c *Config) BiasTF() model.Timeframe { return model.Timeframe(c.Strategy.BiasTimeframe) }

// EntryTF returns the parsed entry timeframe. Call after Validate.
func (c *Config) EntryTF() model.Timeframe { return model.Timeframe(c.Strategy.EntryTimeframe) }

// Instrument returns the configured contract of symbol, or a unit contract.
func (c *Config) Instrument(symbol string) model.Instrument {
	for _, in := range c.Instruments {
		if in.Symbol == symbol {
			return in.WithDefaults()
		}
	}
	return model.DefaultInstrument(symbol)
}

// InstrumentMap indexes the configured instruments by symbol.
func (c *Config) InstrumentMap() map[string]model.Instrument {
	m := make(map[string]model.Instrument, len(c.Instruments))
	for _, in := range c.Instruments {
		m[in.Symbol] = in.WithDefaults()
	}
	return m
}
