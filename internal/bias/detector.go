// Package bias infers the medium-term directional stance of a symbol from a higher-timeframe series.
package bias

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/calculator"
	"TrendSentinel/internal/model"
)

// DefaultWindow is the number of bars in one evaluation window: the current bar plus two references.
const DefaultWindow = 3

// Decision is the outcome of one scan over a series.
type Decision struct {
	Bias  model.Bias
	Found bool
	Index int       // index of the qualifying bar in the scanned series
	Bar   model.Bar // the qualifying bar
}

// Detect scans the series from the most recent bar backwards in overlapping windows of
// `window` bars and returns the first qualifying window. A bullish bar closing at or above
// the highest reference high yields LONG; a bearish bar closing at or below the lowest
// reference low yields SHORT. The oldest window may hold fewer references than window-1.
// depth limits how many windows are scanned (0 scans the whole series).
func Detect(bars []model.Bar, window, depth int) (Decision, error) {
	if window < 2 {
		window = DefaultWindow
	}
	if len(bars) < 2 {
		return Decision{Bias: model.BiasNone}, model.ErrInsufficientData
	}

	scanned := 0
	for i := len(bars) - 1; i >= 1; i-- {
		if depth > 0 && scanned >= depth {
			break
		}
		scanned++

		start := i - (window - 1)
		if start < 0 {
			start = 0
		}
		cur := bars[i]
		highRef, lowRef, err := calculator.Range(bars[start:i])
		if err != nil {
			return Decision{Bias: model.BiasNone}, fmt.Errorf("window at %d: %w", i, err)
		}

		switch {
		case cur.Bullish() && cur.Close >= highRef:
			return Decision{Bias: model.BiasLong, Found: true, Index: i, Bar: cur}, nil
		case cur.Bearish() && cur.Close <= lowRef:
			return Decision{Bias: model.BiasShort, Found: true, Index: i, Bar: cur}, nil
		}
	}
	return Decision{Bias: model.BiasNone}, nil
}

// Result describes what a detection cycle did to one symbol's bias.
type Result struct {
	Symbol   string
	Previous model.Bias
	Current  model.Bias
	Decided  bool // a qualifying window was found
	Changed  bool // the stored bias was overwritten
	Bar      model.Bar
}

// Detector runs Detect for a symbol and folds the decision into a Book.
type Detector struct {
	Window int
	Depth  int
	Book   *Book
}

// NewDetector creates a Detector writing into book.
func NewDetector(book *Book, window, depth int) *Detector {
	return &Detector{Window: window, Depth: depth, Book: book}
}

// Evaluate detects the bias on bars and updates the book when it changed.
// Too few bars is reported as an undecided Result with a nil error.
func (d *Detector) Evaluate(symbol string, bars []model.Bar) (Result, error) {
	prev := d.Book.Get(symbol)
	res := Result{Symbol: symbol, Previous: prev, Current: prev}

	dec, err := Detect(bars, d.Window, d.Depth)
	if errors.Is(err, model.ErrInsufficientData) {
		log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("bias: not enough bars, no decision")
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if !dec.Found {
		return res, nil
	}

	res.Decided = true
	res.Bar = dec.Bar
	changed, err := d.Book.Update(symbol, dec.Bias)
	if err != nil {
		return res, fmt.Errorf("update bias %s: %w", symbol, err)
	}
	res.Current = dec.Bias
	res.Changed = changed
	if changed {
		log.Info().Str("symbol", symbol).Str("from", string(prev)).Str("to", string(dec.Bias)).
			Time("bar", dec.Bar.Time).Msg("bias changed")
	}
	return res, nil
}
