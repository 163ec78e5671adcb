package model

import (
	"fmt"
	"time"
)

// Bar is a single OHLC sample for one interval of one symbol.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// ValidateSeries checks that bars are ordered by strictly increasing time and that
// every bar has a coherent price range.
func ValidateSeries(bars []Bar) error {
	for i, b := range bars {
		if b.High < b.Low {
			return fmt.Errorf("bar %d (%s): high %.5f below low %.5f", i, b.Time.Format(time.RFC3339), b.High, b.Low)
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1].Time
		if !b.Time.After(prev) {
			return fmt.Errorf("bar %d (%s): timestamp not after previous %s", i, b.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}

// Last returns the most recent n bars (all of them if fewer are available).
func Last(bars []Bar, n int) []Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// Timeframe is a bar interval, named the way the data vendors name them.
type Timeframe string

const (
	TF1m  Timeframe = "1min"
	TF5m  Timeframe = "5min"
	TF15m Timeframe = "15min"
	TF30m Timeframe = "30min"
	TF1h  Timeframe = "1hour"
	TF4h  Timeframe = "4hour"
	TF1d  Timeframe = "1day"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe name.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration { return timeframeDurations[tf] }

// DueAt reports whether a bar of this timeframe closes at the minute of t,
// measured from midnight in t's location.
func (tf Timeframe) DueAt(t time.Time) bool {
	step := int(tf.Duration() / time.Minute)
	if step <= 0 {
		return false
	}
	minuteOfDay := t.Hour()*60 + t.Minute()
	return minuteOfDay%step == 0
}
