package calculator

import (
	"errors"
	"math"

	"TrendSentinel/internal/model"
)

// Range scans the bars and returns the highest high and the lowest low.
func Range(bars []model.Bar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}
