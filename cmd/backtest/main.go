package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/backtest"
	"TrendSentinel/internal/collector"
	"TrendSentinel/internal/config"
	"TrendSentinel/internal/logging"
	"TrendSentinel/internal/model"
	"TrendSentinel/internal/notifier"
	"TrendSentinel/internal/recorder"
	"TrendSentinel/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file")
	symbol := flag.String("symbol", "", "symbol to test (default: first configured symbol)")
	biasPath := flag.String("bias", "", "bias timeframe CSV (default: <csv_dir>/<symbol>_<tf>.csv, resampled from the entry series when missing)")
	entryPath := flag.String("entry", "", "entry timeframe CSV (default: <csv_dir>/<symbol>_<tf>.csv)")
	outDir := flag.String("out", "reports", "directory for the exported report")
	session := flag.Bool("session", false, "only take entries inside the configured trading window")
	record := flag.Bool("record", false, "store trades in the configured SQLite database")
	notify := flag.Bool("notify", false, "send the summary to Telegram")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logging.Setup("info", "console")
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, "console")
	if cfg.DataSource.CSVDir == "" {
		cfg.DataSource.CSVDir = "data"
	}
	if cfg.DataSource.Provider == "rest" && cfg.DataSource.BaseURL == "" {
		cfg.DataSource.Provider = "csv"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	if *symbol == "" {
		*symbol = cfg.Strategy.Symbols[0]
	}

	feed := &collector.CSVFeed{Dir: cfg.DataSource.CSVDir}
	if *entryPath == "" {
		*entryPath = feed.Path(*symbol, cfg.EntryTF())
	}
	entryBars, err := collector.LoadCSV(*entryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *entryPath).Msg("load entry series")
	}
	biasBars, err := loadBias(*biasPath, feed.Path(*symbol, cfg.BiasTF()), cfg.BiasTF(), entryBars)
	if err != nil {
		log.Fatal().Err(err).Msg("load bias series")
	}
	log.Info().Str("symbol", *symbol).Int("entry_bars", len(entryBars)).Int("bias_bars", len(biasBars)).Msg("series loaded")

	bcfg := backtest.Config{
		Symbol:     *symbol,
		BiasTF:     cfg.BiasTF(),
		EntryTF:    cfg.EntryTF(),
		BiasWindow: cfg.Strategy.BiasWindow,
		BiasDepth:  cfg.Strategy.BiasDepth,
		Params: strategy.Params{
			TwoBarRatio: cfg.Strategy.TwoBarRatio,
			OneBarRatio: cfg.Strategy.OneBarRatio,
			MaxStopPips: cfg.Strategy.MaxStopPips,
		},
		Instrument:   cfg.Instrument(*symbol),
		Capital:      cfg.Backtest.Capital,
		RiskFraction: cfg.Risk.RiskFraction,
		Leverage:     cfg.Backtest.Leverage,
		MarginSafety: cfg.Risk.MarginSafety,
	}
	bcfg.Costs.Slippage = cfg.Backtest.Slippage
	bcfg.Costs.CommissionRate = cfg.Backtest.CommissionRate
	if *session {
		loc, _ := time.LoadLocation(cfg.Execution.Timezone)
		bcfg.Session = backtest.Session{StartHour: cfg.Execution.TradingStartHour, EndHour: cfg.Execution.TradingEndHour, Location: loc}
	}

	res, err := backtest.Run(bcfg, biasBars, entryBars)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	summary := notifier.FormatBacktestSummary(*symbol, res.Summary)
	fmt.Println(stripTags(summary))

	paths, err := backtest.Export(*outDir, strings.ToLower(*symbol)+"_"+res.RunID[:8], res)
	if err != nil {
		log.Error().Err(err).Msg("export report")
	}
	for _, p := range paths {
		log.Info().Str("path", p).Msg("report written")
	}

	if *record {
		rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Error().Err(err).Msg("open sqlite recorder")
		} else {
			if err := rec.RecordBacktest(res.RunID, res.Trades); err != nil {
				log.Error().Err(err).Msg("record backtest")
			}
			rec.Close()
		}
	}

	if *notify && cfg.Telegram.BotToken != "" {
		tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		tn.Prefix = "[" + cfg.Telegram.Name + "] "
		if err := tn.Send(summary); err != nil {
			log.Error().Err(err).Msg("send summary")
		}
	}
}

// loadBias reads the bias series from path, or from def when path is empty. A missing
// default file falls back to resampling the entry series.
func loadBias(path, def string, tf model.Timeframe, entry []model.Bar) ([]model.Bar, error) {
	explicit := path != ""
	if !explicit {
		path = def
	}
	bars, err := collector.LoadCSV(path)
	if err == nil {
		return bars, nil
	}
	if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	log.Info().Str("timeframe", string(tf)).Msg("no bias file, resampling the entry series")
	return collector.Resample(entry, tf), nil
}

var tagReplacer = strings.NewReplacer("<b>", "", "</b>", "")

func stripTags(s string) string { return tagReplacer.Replace(s) }
