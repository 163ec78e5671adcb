// Package risk turns signals into sized orders whose loss at the stop is a fixed fraction of capital.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"TrendSentinel/internal/model"
)

// DefaultMarginSafety is the share of capital the margin of a single order may consume.
const DefaultMarginSafety = 0.8

// Sizer computes order sizes from account state and instrument contract details.
type Sizer struct {
	MarginSafety float64
}

// NewSizer returns a Sizer; a non-positive safety falls back to DefaultMarginSafety.
func NewSizer(marginSafety float64) *Sizer {
	if marginSafety <= 0 || marginSafety > 1 {
		marginSafety = DefaultMarginSafety
	}
	return &Sizer{MarginSafety: marginSafety}
}

// Size returns the position size for risking acct.RiskFraction of capital over stopDist.
// The result is capped by the margin ceiling, clamped to [VolumeMin, VolumeMax] and
// rounded to the volume step. A non-positive result is returned as 0.
func (s *Sizer) Size(stopDist, entry float64, acct model.AccountState, in model.Instrument) float64 {
	in = in.WithDefaults()
	if stopDist <= 0 || acct.Capital <= 0 || acct.RiskFraction <= 0 {
		return 0
	}

	riskMoney := acct.Capital * acct.RiskFraction
	size := riskMoney / (stopDist * in.PointValue())

	if acct.Leverage > 0 && entry > 0 {
		ceiling := s.MarginSafety * acct.Capital
		margin := size * in.ContractSize * entry / acct.Leverage
		if margin > ceiling {
			size = ceiling * acct.Leverage / (in.ContractSize * entry)
		}
	}

	if size <= 0 {
		return 0
	}
	size = roundStep(clamp(size, in), in.VolumeStep)
	if size = clamp(size, in); size <= 0 {
		return 0
	}
	return size
}

func clamp(size float64, in model.Instrument) float64 {
	if in.VolumeMax > 0 && size > in.VolumeMax {
		return in.VolumeMax
	}
	if size < in.VolumeMin {
		return in.VolumeMin
	}
	return size
}

// SizeOrder builds the order for sig, or returns ErrInvalidSignal when the stop distance
// or the resulting size is not positive.
func (s *Sizer) SizeOrder(sig model.Signal, acct model.AccountState, in model.Instrument) (*model.Order, error) {
	if sig.StopDistance <= 0 {
		return nil, fmt.Errorf("%w: %s stop distance %.5f", model.ErrInvalidSignal, sig.ID(), sig.StopDistance)
	}
	size := s.Size(sig.StopDistance, sig.EntryPrice, acct, in)
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s sized to zero (capital %.2f, risk %.4f)", model.ErrInvalidSignal, sig.ID(), acct.Capital, acct.RiskFraction)
	}
	return &model.Order{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction(),
		Pattern:    sig.Pattern,
		EntryTime:  sig.Time,
		EntryPrice: sig.EntryPrice,
		StopPrice:  sig.StopPrice,
		TakeProfit: sig.TakeProfit,
		Size:       size,
	}, nil
}

// roundStep rounds v to the nearest multiple of step; step <= 0 rounds to 2 decimals.
func roundStep(v, step float64) float64 {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d.Round(2).InexactFloat64()
	}
	st := decimal.NewFromFloat(step)
	return d.Div(st).Round(0).Mul(st).InexactFloat64()
}
