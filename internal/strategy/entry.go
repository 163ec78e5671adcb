// Package strategy detects short-term reversal entries that agree with the current bias.
package strategy

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/calculator"
	"TrendSentinel/internal/model"
)

// Params tunes entry detection.
type Params struct {
	TwoBarRatio float64 // reward ratio of the two-bar reversal
	OneBarRatio float64 // reward ratio of the one-bar reversal
	// MaxStopPips caps the stop distance in pips for every instrument; 0 disables it.
	MaxStopPips float64
}

// DefaultParams mirrors the production configuration: 3R for two-bar, 2R for one-bar, 100 pips max.
func DefaultParams() Params {
	return Params{TwoBarRatio: 3, OneBarRatio: 2, MaxStopPips: 100}
}

// candidate pairs a matcher with the reward ratio it trades at.
type candidate struct {
	matcher PatternMatcher
	ratio   float64
}

// PatternMatcher reports whether (vela1, vela2, vela3) form a pattern, oldest first.
type PatternMatcher struct {
	Kind  model.PatternKind
	Match func(v1, v2, v3 model.Bar) bool
}

var (
	long2Bar = PatternMatcher{model.PatternLong2Bar, func(v1, v2, v3 model.Bar) bool {
		return v1.Bearish() && v2.Bearish() && v3.Bullish() && v3.Close >= v2.High
	}}
	long1Bar = PatternMatcher{model.PatternLong1Bar, func(_, v2, v3 model.Bar) bool {
		return v2.Bearish() && v3.Bullish() && v3.Close >= v2.High
	}}
	short2Bar = PatternMatcher{model.PatternShort2Bar, func(v1, v2, v3 model.Bar) bool {
		return v1.Bullish() && v2.Bullish() && v3.Bearish() && v3.Close <= v2.Low
	}}
	short1Bar = PatternMatcher{model.PatternShort1Bar, func(_, v2, v3 model.Bar) bool {
		return v2.Bullish() && v3.Bearish() && v3.Close <= v2.Low
	}}
)

// candidates returns the patterns to try for a bias, two-bar first.
func (p Params) candidates(b model.Bias) []candidate {
	switch b {
	case model.BiasLong:
		return []candidate{{long2Bar, p.TwoBarRatio}, {long1Bar, p.OneBarRatio}}
	case model.BiasShort:
		return []candidate{{short2Bar, p.TwoBarRatio}, {short1Bar, p.OneBarRatio}}
	default:
		return nil
	}
}

// DetectEntries evaluates the three most recent bars against the patterns allowed by b
// and returns at most one signal. A NONE bias yields no signals.
func DetectEntries(symbol string, tf model.Timeframe, bars []model.Bar, b model.Bias, in model.Instrument, p Params) ([]model.Signal, error) {
	cands := p.candidates(b)
	if len(cands) == 0 {
		return nil, nil
	}
	if len(bars) < 3 {
		return nil, model.ErrInsufficientData
	}
	last := model.Last(bars, 3)
	v1, v2, v3 := last[0], last[1], last[2]

	for _, c := range cands {
		if !c.matcher.Match(v1, v2, v3) {
			continue
		}
		sig, err := buildSignal(symbol, tf, c.matcher.Kind, last, c.ratio, in, p)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Str("pattern", string(c.matcher.Kind)).Msg("entry discarded")
			return nil, nil
		}
		return []model.Signal{sig}, nil
	}
	return nil, nil
}

// buildSignal derives stop, caps and take-profit for a matched pattern.
func buildSignal(symbol string, tf model.Timeframe, kind model.PatternKind, window []model.Bar, ratio float64, in model.Instrument, p Params) (model.Signal, error) {
	in = in.WithDefaults()
	dir := kind.Direction()
	entryBar := window[len(window)-1]
	entry := entryBar.Close

	high, low, err := calculator.Range(window)
	if err != nil {
		return model.Signal{}, err
	}
	stop := low
	if dir == model.Short {
		stop = high
	}

	// Per-instrument absolute cap.
	if in.MaxStopDistance > 0 && math.Abs(entry-stop) > in.MaxStopDistance {
		stop = entry - dir.Sign()*in.MaxStopDistance
		log.Debug().Str("symbol", symbol).Float64("cap", in.MaxStopDistance).Msg("stop clamped to instrument cap")
	}

	// Instrument-agnostic cap in pips; it also fixes the reported pip count.
	pips := calculator.Pips(in, entry, stop)
	if p.MaxStopPips > 0 && pips > p.MaxStopPips {
		stop = entry - dir.Sign()*p.MaxStopPips*in.PipSize
		pips = p.MaxStopPips
	}

	dist := math.Abs(entry - stop)
	if dist <= 0 {
		return model.Signal{}, fmt.Errorf("%w: zero stop distance at %.5f", model.ErrInvalidSignal, entry)
	}
	if ratio <= 0 {
		return model.Signal{}, fmt.Errorf("%w: reward ratio %.2f", model.ErrInvalidSignal, ratio)
	}

	return model.Signal{
		Symbol:       symbol,
		Pattern:      kind,
		Timeframe:    tf,
		Time:         entryBar.Time,
		EntryPrice:   entry,
		StopPrice:    stop,
		TakeProfit:   entry + dir.Sign()*dist*ratio,
		StopDistance: dist,
		StopPips:     pips,
		RewardRatio:  ratio,
	}, nil
}
