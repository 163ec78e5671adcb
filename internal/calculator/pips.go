package calculator

import (
	"math"

	"github.com/shopspring/decimal"

	"TrendSentinel/internal/model"
)

// Pips returns the absolute distance between two prices in pips, rounded to 2 decimals.
func Pips(in model.Instrument, a, b float64) float64 {
	raw := math.Abs(a-b) * in.PipScale()
	return decimal.NewFromFloat(raw).Round(2).InexactFloat64()
}

// SignedPips returns (exit-entry) in pips, positive when the move favoured dir.
func SignedPips(in model.Instrument, dir model.Direction, entry, exit float64) float64 {
	return (exit - entry) * dir.Sign() * in.PipScale()
}
