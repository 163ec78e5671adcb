// Package resolver closes orders: by replaying historical bars, or by placing them
// with a live broker under a bounded retry policy.
package resolver

import (
	"fmt"

	"TrendSentinel/internal/calculator"
	"TrendSentinel/internal/model"
)

// Costs are the fixed frictions applied to replayed fills.
type Costs struct {
	Slippage       float64 // price units, always against the trader
	CommissionRate float64 // fraction of round-trip notional
}

// Replay scans bars from index from and closes o at the first bar that touches its stop
// or target. When one bar touches both, the stop wins. If no bar resolves the order
// Replay returns ErrUnresolved. Replay has no side effects and is deterministic.
func Replay(o model.Order, bars []model.Bar, from int, in model.Instrument, c Costs) (model.Trade, error) {
	if from < 0 {
		from = 0
	}
	if o.StopDistance() <= 0 || o.Size <= 0 {
		return model.Trade{}, fmt.Errorf("%w: %s %s size %.4f stop %.5f", model.ErrInvalidSignal, o.Symbol, o.Direction, o.Size, o.StopPrice)
	}
	for j := from; j < len(bars); j++ {
		bar := bars[j]
		exit, reason, hit := touch(o, bar, c.Slippage)
		if !hit {
			continue
		}
		return closeTrade(o, bar, exit, reason, j-from+1, in, c), nil
	}
	return model.Trade{}, fmt.Errorf("%w: %s %s from %.5f after %d bars", ErrUnresolved, o.Symbol, o.Direction, o.EntryPrice, len(bars)-from)
}

// touch checks a single bar, stop first.
func touch(o model.Order, bar model.Bar, slip float64) (float64, model.ExitReason, bool) {
	if o.Direction == model.Long {
		switch {
		case bar.Low <= o.StopPrice:
			return o.StopPrice - slip, model.ExitStop, true
		case bar.High >= o.TakeProfit:
			return o.TakeProfit - slip, model.ExitTarget, true
		}
		return 0, "", false
	}
	switch {
	case bar.High >= o.StopPrice:
		return o.StopPrice + slip, model.ExitStop, true
	case bar.Low <= o.TakeProfit:
		return o.TakeProfit + slip, model.ExitTarget, true
	}
	return 0, "", false
}

func closeTrade(o model.Order, bar model.Bar, exit float64, reason model.ExitReason, held int, in model.Instrument, c Costs) model.Trade {
	in = in.WithDefaults()
	diff := (exit - o.EntryPrice) * o.Direction.Sign()
	commission := (o.EntryPrice + exit) * o.Size * in.ContractSize * c.CommissionRate
	return model.Trade{
		Symbol:     o.Symbol,
		EntryTime:  o.EntryTime,
		ExitTime:   bar.Time,
		Direction:  o.Direction,
		EntryPrice: o.EntryPrice,
		ExitPrice:  exit,
		StopPrice:  o.StopPrice,
		TakeProfit: o.TakeProfit,
		Size:       o.Size,
		PnL:        diff*o.Size*in.PointValue() - commission,
		PnLPips:    calculator.SignedPips(in, o.Direction, o.EntryPrice, exit),
		Commission: commission,
		ExitReason: reason,
		BarsHeld:   held,
	}
}
