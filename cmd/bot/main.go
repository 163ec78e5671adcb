package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/bias"
	"TrendSentinel/internal/collector"
	"TrendSentinel/internal/config"
	"TrendSentinel/internal/logging"
	"TrendSentinel/internal/notifier"
	"TrendSentinel/internal/recorder"
	"TrendSentinel/internal/resolver"
	"TrendSentinel/internal/risk"
	"TrendSentinel/internal/scheduler"
	"TrendSentinel/internal/store"
	"TrendSentinel/internal/strategy"
	"TrendSentinel/internal/telemetry"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("info", "json")
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	log.Info().Str("mode", cfg.Execution.Mode).Strs("symbols", cfg.Strategy.Symbols).Msg("TrendSentinel starting")

	if cfg.MetricsAddr != "" {
		srv := telemetry.Serve(cfg.MetricsAddr)
		defer srv.Close()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint started")
	}

	// Init feed
	feed := newFeed(cfg)
	col := collector.NewCollector(feed)
	col.IncludeForming = cfg.DataSource.IncludeForming
	log.Info().Str("feed", feed.Name()).Msg("data source ready")

	// Init recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	var sqliteRec *recorder.SQLiteRecorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec, sqliteRec = sr, sr
			defer sr.Close()
		}
	}

	// Init bias store
	var biasStore bias.Store
	switch cfg.BiasStore.Kind {
	case "sqlite":
		if sqliteRec == nil {
			log.Fatal().Msg("bias_store.kind sqlite requires a working database.sqlite_path")
		}
		biasStore = sqliteRec
	default:
		js, err := store.NewJSONStore(cfg.BiasStore.Dir)
		if err != nil {
			log.Fatal().Err(err).Msg("init bias store")
		}
		biasStore = js
	}
	book, err := bias.NewBook(biasStore, cfg.BiasTF(), cfg.Strategy.Symbols)
	if err != nil {
		log.Fatal().Err(err).Msg("load biases")
	}
	det := bias.NewDetector(book, cfg.Strategy.BiasWindow, cfg.Strategy.BiasDepth)

	// Init notifier
	var note notifier.Notifier = notifier.Noop{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		tn.Prefix = "[" + cfg.Telegram.Name + "] "
		note = tn
	}

	// Init executors
	executors := newExecutors(cfg, col)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, _ := time.LoadLocation(cfg.Execution.Timezone)
	opts := scheduler.Options{
		Mode:      cfg.Execution.Mode,
		Symbols:   cfg.Strategy.Symbols,
		BiasTF:    cfg.BiasTF(),
		EntryTF:   cfg.EntryTF(),
		BiasBars:  cfg.Strategy.BiasBars,
		EntryBars: cfg.Strategy.EntryBars,
		Params: strategy.Params{
			TwoBarRatio: cfg.Strategy.TwoBarRatio,
			OneBarRatio: cfg.Strategy.OneBarRatio,
			MaxStopPips: cfg.Strategy.MaxStopPips,
		},
		Window: scheduler.TradingWindow{
			StartHour: cfg.Execution.TradingStartHour,
			EndHour:   cfg.Execution.TradingEndHour,
			Location:  loc,
		},
		ShutdownTimeout: cfg.Execution.ShutdownTimeout,
	}
	sched := scheduler.NewScheduler(ctx, opts, col, det, note, rec, executors, cfg.Instrument)
	if err := sched.Register(cfg.Execution.CycleCron); err != nil {
		log.Fatal().Err(err).Msg("register cycle")
	}
	sched.Start()

	if tn != nil && cfg.Telegram.Polling {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}
	if err := note.Send(notifier.FormatStartup(cfg.Execution.Mode, cfg.Strategy.Symbols, time.Now())); err != nil {
		log.Warn().Err(err).Msg("send startup notification")
	}

	// Initial full verification
	go sched.RunCycle(time.Now())

	log.Info().Msg("TrendSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, waiting for the running cycle")
	if !sched.Stop() {
		log.Warn().Msg("cycle did not finish in time, exiting anyway")
	}
	if err := note.Send(notifier.FormatShutdown(time.Now())); err != nil {
		log.Warn().Err(err).Msg("send shutdown notification")
	}
	cancel()
	log.Info().Msg("TrendSentinel stopped")
}

func newFeed(cfg *config.Config) collector.BarFeed {
	ds := cfg.DataSource
	switch ds.Provider {
	case "yahoo":
		return collector.NewYahooFeed(cfg.Proxy, ds.SymbolMap)
	case "csv":
		return &collector.CSVFeed{Dir: ds.CSVDir}
	case "mock":
		return &collector.MockFeed{Price: 1.1}
	default:
		return collector.NewRESTFeed(ds.BaseURL, ds.APIKey, cfg.Proxy)
	}
}

func newExecutors(cfg *config.Config, col *collector.Collector) []*resolver.Executor {
	sizer := risk.NewSizer(cfg.Risk.MarginSafety)
	policy := resolver.RetryPolicy{
		MaxAttempts: cfg.Execution.MaxRetries,
		BaseDelay:   cfg.Execution.BackoffBase,
		Step:        cfg.Execution.BackoffStep,
		MaxDelay:    cfg.Execution.BackoffMax,
	}

	switch cfg.Execution.Mode {
	case config.ModePaper:
		costs := resolver.Costs{Slippage: cfg.Backtest.Slippage, CommissionRate: cfg.Backtest.CommissionRate}
		paper := resolver.NewPaperBroker(col.Quotes(cfg.EntryTF()), cfg.InstrumentMap(),
			cfg.Execution.PaperCapital, cfg.Execution.PaperLeverage, cfg.Execution.PaperSpread, costs)
		paper.BarDuration = cfg.EntryTF().Duration()
		return []*resolver.Executor{
			resolver.NewExecutor("paper", paper, sizer, policy, cfg.Risk.RiskFraction, cfg.Risk.MaxOpenPositions),
		}
	case config.ModeLive:
		executors := make([]*resolver.Executor, 0, len(cfg.Execution.Accounts))
		for _, a := range cfg.Execution.Accounts {
			b := resolver.NewBridgeBroker(a.BaseURL, a.Token, cfg.Proxy)
			b.Leverage = a.Leverage
			executors = append(executors, resolver.NewExecutor(a.Name, b, sizer, policy, cfg.Risk.RiskFraction, cfg.Risk.MaxOpenPositions))
			log.Info().Str("account", a.Name).Str("bridge", a.BaseURL).Msg("account ready")
		}
		return executors
	}
	return nil
}
