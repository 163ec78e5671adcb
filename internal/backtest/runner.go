// Package backtest replays the bias, entry, sizing and resolution pipeline over
// historical series.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/account"
	"TrendSentinel/internal/bias"
	"TrendSentinel/internal/metrics"
	"TrendSentinel/internal/model"
	"TrendSentinel/internal/resolver"
	"TrendSentinel/internal/risk"
	"TrendSentinel/internal/strategy"
)

// Session restricts entries to [StartHour, EndHour) in Location. The zero value allows all hours.
type Session struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

func (s Session) allows(t time.Time) bool {
	if s.EndHour == 0 {
		return true
	}
	if s.Location != nil {
		t = t.In(s.Location)
	}
	return t.Hour() >= s.StartHour && t.Hour() < s.EndHour
}

// Config parameterizes one run.
type Config struct {
	Symbol       string
	BiasTF       model.Timeframe
	EntryTF      model.Timeframe
	BiasWindow   int
	BiasDepth    int
	Params       strategy.Params
	Instrument   model.Instrument
	Capital      float64
	RiskFraction float64
	Leverage     float64
	MarginSafety float64
	Costs        resolver.Costs
	Session      Session
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	Symbol     string
	Trades     []model.Trade
	Signals    int // signals detected while flat
	Discarded  int // signals that could not be sized
	Unresolved int
	Summary    metrics.Summary
}

// Run walks the entry series bar by bar. At each closed entry bar the bias is
// re-evaluated on the higher-timeframe bars closed by then, entries are detected on
// the last three entry bars, and a sized order is replayed from the next bar. While a
// position is open no new entry is taken. Orders still open when the data ends are
// counted as unresolved and stop the run.
func Run(cfg Config, biasBars, entryBars []model.Bar) (Result, error) {
	if err := model.ValidateSeries(biasBars); err != nil {
		return Result{}, fmt.Errorf("bias series: %w", err)
	}
	if err := model.ValidateSeries(entryBars); err != nil {
		return Result{}, fmt.Errorf("entry series: %w", err)
	}
	if cfg.BiasTF.Duration() <= 0 || cfg.EntryTF.Duration() <= 0 {
		return Result{}, fmt.Errorf("backtest: unknown timeframe %q/%q", cfg.BiasTF, cfg.EntryTF)
	}
	if cfg.Capital <= 0 {
		return Result{}, fmt.Errorf("backtest: capital must be positive")
	}
	in := cfg.Instrument.WithDefaults()

	book, err := bias.NewBook(bias.NewMemoryStore(), cfg.BiasTF, []string{cfg.Symbol})
	if err != nil {
		return Result{}, err
	}
	det := bias.NewDetector(book, cfg.BiasWindow, cfg.BiasDepth)
	ledger := account.NewLedger(cfg.Capital, cfg.RiskFraction, cfg.Leverage)
	sizer := risk.NewSizer(cfg.MarginSafety)

	res := Result{RunID: uuid.NewString(), Symbol: cfg.Symbol}
	logger := log.With().Str("run", res.RunID).Str("symbol", cfg.Symbol).Logger()

	avail, evaluated := 0, 0
	busyUntil := -1
	for i := 2; i < len(entryBars); i++ {
		closeAt := entryBars[i].Time.Add(cfg.EntryTF.Duration())

		// only bias bars closed by the time this entry bar closes
		for avail < len(biasBars) && !biasBars[avail].Time.Add(cfg.BiasTF.Duration()).After(closeAt) {
			avail++
		}
		if avail != evaluated {
			evaluated = avail
			if _, err := det.Evaluate(cfg.Symbol, biasBars[:avail]); err != nil {
				return Result{}, fmt.Errorf("bias at %s: %w", closeAt, err)
			}
		}

		if i <= busyUntil || !cfg.Session.allows(closeAt) {
			continue
		}
		signals, err := strategy.DetectEntries(cfg.Symbol, cfg.EntryTF, entryBars[i-2:i+1], book.Get(cfg.Symbol), in, cfg.Params)
		if err != nil {
			return Result{}, fmt.Errorf("entries at %s: %w", closeAt, err)
		}
		if len(signals) == 0 {
			continue
		}
		sig := signals[0]
		res.Signals++

		order, err := sizer.SizeOrder(sig, ledger.State(), in)
		if err != nil {
			res.Discarded++
			logger.Debug().Err(err).Msg("signal discarded")
			continue
		}
		order.EntryTime = closeAt

		trade, err := resolver.Replay(*order, entryBars, i+1, in, cfg.Costs)
		if errors.Is(err, resolver.ErrUnresolved) {
			res.Unresolved++
			logger.Info().Str("signal", sig.ID()).Msg("order unresolved at end of data")
			break
		}
		if err != nil {
			res.Discarded++
			logger.Debug().Err(err).Msg("order rejected")
			continue
		}
		ledger.Apply(trade)
		res.Trades = append(res.Trades, trade)
		busyUntil = i + trade.BarsHeld
	}

	res.Summary = metrics.Summarize(res.Trades, cfg.Capital, res.Unresolved)
	logger.Info().Int("trades", len(res.Trades)).Int("unresolved", res.Unresolved).
		Float64("final_capital", res.Summary.FinalCapital).Float64("max_drawdown", res.Summary.MaxDrawdown).
		Msg("backtest finished")
	return res, nil
}
