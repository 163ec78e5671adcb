package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"TrendSentinel/internal/metrics"
)

var tradeHeader = []string{
	"entry_time", "exit_time", "direction", "entry_price", "exit_price", "stop_price", "take_profit",
	"size", "pnl", "pnl_pips", "commission", "exit_reason", "bars_held",
}

func ftoa(x float64) string { return strconv.FormatFloat(x, 'f', -1, 64) }

// WriteTrades writes one row per trade with a header.
func WriteTrades(w io.Writer, res Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range res.Trades {
		row := []string{
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			string(t.Direction),
			ftoa(t.EntryPrice),
			ftoa(t.ExitPrice),
			ftoa(t.StopPrice),
			ftoa(t.TakeProfit),
			ftoa(t.Size),
			ftoa(t.PnL),
			ftoa(t.PnLPips),
			ftoa(t.Commission),
			string(t.ExitReason),
			strconv.Itoa(t.BarsHeld),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the summary as metric,value rows.
func WriteSummary(w io.Writer, res Result) error {
	s := res.Summary
	rows := [][]string{
		{"metric", "value"},
		{"run_id", res.RunID},
		{"symbol", res.Symbol},
		{"total_trades", strconv.Itoa(s.TotalTrades)},
		{"winners", strconv.Itoa(s.Winners)},
		{"losers", strconv.Itoa(s.Losers)},
		{"win_rate_pct", ftoa(s.WinRate)},
		{"initial_capital", ftoa(s.InitialCapital)},
		{"final_capital", ftoa(s.FinalCapital)},
		{"net_profit", ftoa(s.NetProfit)},
		{"net_profit_pct", ftoa(s.NetProfitPct)},
		{"total_pips", ftoa(s.TotalPips)},
		{"avg_pips", ftoa(s.AvgPips)},
		{"avg_win_pips", ftoa(s.AvgWinPips)},
		{"avg_loss_pips", ftoa(s.AvgLossPips)},
		{"avg_win", ftoa(s.AvgWin)},
		{"avg_loss", ftoa(s.AvgLoss)},
		{"win_loss_ratio", ftoa(s.WinLossRatio)},
		{"largest_win", ftoa(s.LargestWin)},
		{"largest_loss", ftoa(s.LargestLoss)},
		{"std_dev", ftoa(s.StdDev)},
		{"sharpe", ftoa(s.Sharpe)},
		{"target_hits", strconv.Itoa(s.TargetHits)},
		{"stop_hits", strconv.Itoa(s.StopHits)},
		{"target_pct", ftoa(s.TargetPct)},
		{"avg_bars_held", ftoa(s.AvgBarsHeld)},
		{"long_trades", strconv.Itoa(s.LongTrades)},
		{"short_trades", strconv.Itoa(s.ShortTrades)},
		{"long_win_rate_pct", ftoa(s.LongWinRate)},
		{"short_win_rate_pct", ftoa(s.ShortWinRate)},
		{"max_drawdown_pct", ftoa(s.MaxDrawdown)},
		{"profit_factor", ftoa(s.ProfitFactor)},
		{"signals", strconv.Itoa(res.Signals)},
		{"discarded", strconv.Itoa(res.Discarded)},
		{"unresolved", strconv.Itoa(s.Unresolved)},
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteEquity writes the equity curve, starting with the initial capital.
func WriteEquity(w io.Writer, res Result) error {
	curve := metrics.EquityCurve(res.Trades, res.Summary.InitialCapital)
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"trade", "equity"}); err != nil {
		return err
	}
	for i, eq := range curve {
		if err := cw.Write([]string{strconv.Itoa(i), ftoa(eq)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes <prefix>_trades.csv, <prefix>_summary.csv and <prefix>_equity.csv
// into dir and returns the paths written.
func Export(dir, prefix string, res Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	writers := []struct {
		suffix string
		write  func(io.Writer, Result) error
	}{
		{"trades", WriteTrades},
		{"summary", WriteSummary},
		{"equity", WriteEquity},
	}
	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", prefix, wr.suffix))
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create %s: %w", path, err)
		}
		err = wr.write(f, res)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
