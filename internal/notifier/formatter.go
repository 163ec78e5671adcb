package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"TrendSentinel/internal/metrics"
	"TrendSentinel/internal/model"
	"TrendSentinel/internal/resolver"
)

const stamp = "2006-01-02 15:04:05"

func arrow(long bool) string {
	if long {
		return "📈"
	}
	return "📉"
}

// FormatStartup announces the process start.
func FormatStartup(mode string, symbols []string, now time.Time) string {
	return fmt.Sprintf("🤖 Bot started (%s)\nSymbols: %s\n⏰ %s", mode, strings.Join(symbols, ", "), now.Format(stamp))
}

// FormatShutdown announces the process stop.
func FormatShutdown(now time.Time) string {
	return fmt.Sprintf("🛑 Bot stopped\n⏰ %s", now.Format(stamp))
}

// FormatBiasChange formats a persisted bias change.
func FormatBiasChange(symbol string, tf model.Timeframe, prev, cur model.Bias, bar model.Bar) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>BIAS UPDATED - %s %s</b>\n", symbol, tf))
	b.WriteString(fmt.Sprintf("%s <b>%s</b> (was %s)\n\n", arrow(cur == model.BiasLong), cur, prev))
	b.WriteString(fmt.Sprintf("• Bar: %s\n", bar.Time.Format(stamp)))
	b.WriteString(fmt.Sprintf("• Close: %.5f\n", bar.Close))
	return b.String()
}

// FormatSignal formats an entry signal.
func FormatSignal(s model.Signal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>SIGNAL - %s %s</b>\n", arrow(s.Direction() == model.Long), s.Symbol, s.Timeframe))
	b.WriteString(fmt.Sprintf("• Type: %s\n", s.Pattern))
	b.WriteString(fmt.Sprintf("• Entry: %.5f\n", s.EntryPrice))
	b.WriteString(fmt.Sprintf("• SL: %.5f\n", s.StopPrice))
	b.WriteString(fmt.Sprintf("• TP: %.5f\n", s.TakeProfit))
	b.WriteString(fmt.Sprintf("• SL pips: %.2f\n", s.StopPips))
	b.WriteString(fmt.Sprintf("• Ratio: 1:%g\n", s.RewardRatio))
	return b.String()
}

// FormatExecution summarizes the per-account outcomes of a signal.
func FormatExecution(s model.Signal, outcomes []resolver.Outcome) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚙️ <b>EXECUTION - %s %s</b>\n", s.Symbol, s.Pattern))
	for _, o := range outcomes {
		switch o.Kind {
		case resolver.Filled:
			b.WriteString(fmt.Sprintf("✅ %s: ticket %s, %.2f @ %.5f (%d attempts)\n", o.Account, o.Fill.Ticket, o.Fill.Size, o.Fill.Price, o.Attempts))
		case resolver.CapacityExceeded:
			b.WriteString(fmt.Sprintf("⚠️ %s: position limit reached\n", o.Account))
		case resolver.Discarded:
			b.WriteString(fmt.Sprintf("🚫 %s: signal discarded, %v\n", o.Account, o.Err))
		case resolver.Exhausted:
			b.WriteString(fmt.Sprintf("❌ %s: gave up after %d attempts, last code %d (%s)\n", o.Account, o.Attempts, o.LastCode, resolver.CodeMessage(o.LastCode)))
		default:
			b.WriteString(fmt.Sprintf("❌ %s: %v\n", o.Account, o.Err))
		}
	}
	return b.String()
}

// FormatBiasTable lists the biases of a timeframe, sorted by symbol.
func FormatBiasTable(tf model.Timeframe, biases map[string]model.Bias) string {
	symbols := make([]string, 0, len(biases))
	for s := range biases {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧭 <b>Bias %s</b>\n\n", tf))
	for _, s := range symbols {
		b.WriteString(fmt.Sprintf("%s: %s\n", s, biases[s]))
	}
	return b.String()
}

// Status is the orchestrator state shown by /status.
type Status struct {
	Mode       string
	Running    bool
	LastCycle  time.Time
	CycleID    string
	LastSignal string
	Skipped    int
}

// FormatStatus formats the orchestrator status.
func FormatStatus(st Status) string {
	var b strings.Builder
	b.WriteString("📦 <b>Status</b>\n\n")
	b.WriteString(fmt.Sprintf("Mode: %s\n", st.Mode))
	b.WriteString(fmt.Sprintf("Cycle running: %v\n", st.Running))
	if st.LastCycle.IsZero() {
		b.WriteString("Last cycle: never\n")
	} else {
		b.WriteString(fmt.Sprintf("Last cycle: %s (%s)\n", st.LastCycle.Format(stamp), st.CycleID))
	}
	if st.LastSignal != "" {
		b.WriteString(fmt.Sprintf("Last signal: %s\n", st.LastSignal))
	}
	b.WriteString(fmt.Sprintf("Skipped cycles: %d\n", st.Skipped))
	return b.String()
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "Commands:\n/bias - current biases\n/status - orchestrator state"
}

// FormatBacktestSummary formats the report of a backtest run.
func FormatBacktestSummary(symbol string, s metrics.Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧪 <b>Backtest - %s</b>\n\n", symbol))
	b.WriteString(fmt.Sprintf("Trades: %d (W %d / L %d, unresolved %d)\n", s.TotalTrades, s.Winners, s.Losers, s.Unresolved))
	b.WriteString(fmt.Sprintf("Win rate: %.1f%%\n", s.WinRate))
	b.WriteString(fmt.Sprintf("Capital: %.2f → %.2f\n", s.InitialCapital, s.FinalCapital))
	b.WriteString(fmt.Sprintf("Net profit: %.2f (%+.2f%%)\n", s.NetProfit, s.NetProfitPct))
	b.WriteString(fmt.Sprintf("Pips: %.1f total, %.1f avg\n", s.TotalPips, s.AvgPips))
	b.WriteString(fmt.Sprintf("Profit factor: %.2f | Sharpe: %.2f\n", s.ProfitFactor, s.Sharpe))
	b.WriteString(fmt.Sprintf("Max drawdown: %.2f%%\n", s.MaxDrawdown))
	b.WriteString(fmt.Sprintf("TP %d / SL %d (%.1f%% TP)\n", s.TargetHits, s.StopHits, s.TargetPct))
	return b.String()
}
