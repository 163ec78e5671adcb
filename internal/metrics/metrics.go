// Package metrics aggregates closed trades into performance statistics.
package metrics

import (
	"math"

	"TrendSentinel/internal/model"
)

// Summary is the performance report of a sequence of trades.
type Summary struct {
	TotalTrades    int
	Winners        int
	Losers         int
	WinRate        float64 // percent
	InitialCapital float64
	FinalCapital   float64
	NetProfit      float64
	NetProfitPct   float64
	TotalPips      float64
	AvgPips        float64
	AvgWinPips     float64
	AvgLossPips    float64
	AvgWin         float64
	AvgLoss        float64
	WinLossRatio   float64
	LargestWin     float64
	LargestLoss    float64
	StdDev         float64
	Sharpe         float64 // mean/std of per-trade PnL
	TargetHits     int
	StopHits       int
	TargetPct      float64
	AvgBarsHeld    float64
	LongTrades     int
	ShortTrades    int
	LongWinRate    float64
	ShortWinRate   float64
	MaxDrawdown    float64 // percent, <= 0
	ProfitFactor   float64
	Unresolved     int
}

// Summarize computes the summary of trades starting from initial capital.
// unresolved is reported as-is; those orders never reach the trade list.
func Summarize(trades []model.Trade, initial float64, unresolved int) Summary {
	s := Summary{TotalTrades: len(trades), InitialCapital: initial, FinalCapital: initial, Unresolved: unresolved}
	if len(trades) == 0 {
		return s
	}

	var (
		grossWin, grossLoss float64
		winPips, lossPips   float64
		bars                int
		longWins, shortWins int
		pnls                = make([]float64, len(trades))
	)
	s.LargestWin, s.LargestLoss = trades[0].PnL, trades[0].PnL
	for i, t := range trades {
		pnls[i] = t.PnL
		s.NetProfit += t.PnL
		s.TotalPips += t.PnLPips
		bars += t.BarsHeld
		s.LargestWin = math.Max(s.LargestWin, t.PnL)
		s.LargestLoss = math.Min(s.LargestLoss, t.PnL)

		switch {
		case t.PnL > 0:
			s.Winners++
			grossWin += t.PnL
			winPips += t.PnLPips
		case t.PnL < 0:
			s.Losers++
			grossLoss += t.PnL
			lossPips += t.PnLPips
		}
		switch t.ExitReason {
		case model.ExitTarget:
			s.TargetHits++
		case model.ExitStop:
			s.StopHits++
		}
		if t.Direction == model.Long {
			s.LongTrades++
			if t.PnL > 0 {
				longWins++
			}
		} else {
			s.ShortTrades++
			if t.PnL > 0 {
				shortWins++
			}
		}
	}

	n := float64(len(trades))
	s.WinRate = float64(s.Winners) / n * 100
	s.FinalCapital = initial + s.NetProfit
	if initial != 0 {
		s.NetProfitPct = s.NetProfit / initial * 100
	}
	s.AvgPips = s.TotalPips / n
	s.AvgWinPips = ratio(winPips, float64(s.Winners))
	s.AvgLossPips = ratio(lossPips, float64(s.Losers))
	s.AvgWin = ratio(grossWin, float64(s.Winners))
	s.AvgLoss = ratio(grossLoss, float64(s.Losers))
	if s.AvgLoss != 0 {
		s.WinLossRatio = math.Abs(s.AvgWin / s.AvgLoss)
	}
	s.StdDev = stdDev(pnls)
	if s.StdDev != 0 {
		s.Sharpe = (s.NetProfit / n) / s.StdDev
	}
	s.TargetPct = float64(s.TargetHits) / n * 100
	s.AvgBarsHeld = float64(bars) / n
	s.LongWinRate = ratio(float64(longWins)*100, float64(s.LongTrades))
	s.ShortWinRate = ratio(float64(shortWins)*100, float64(s.ShortTrades))
	s.MaxDrawdown = MaxDrawdown(EquityCurve(trades, initial))
	if grossLoss != 0 {
		s.ProfitFactor = math.Abs(grossWin / grossLoss)
	}
	return s
}

// EquityCurve returns capital after each trade, starting with initial.
func EquityCurve(trades []model.Trade, initial float64) []float64 {
	curve := make([]float64, 0, len(trades)+1)
	eq := initial
	curve = append(curve, eq)
	for _, t := range trades {
		eq += t.PnL
		curve = append(curve, eq)
	}
	return curve
}

// MaxDrawdown returns the deepest peak-to-trough decline of curve in percent of the
// peak, as a non-positive number. Points before a positive peak are ignored.
func MaxDrawdown(curve []float64) float64 {
	var peak, worst float64
	for i, v := range curve {
		if i == 0 || v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (v - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

// stdDev is the sample standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
