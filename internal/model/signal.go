package model

import (
	"fmt"
	"time"
)

// Bias is the directional stance for a symbol.
type Bias string

const (
	BiasNone  Bias = "NONE"
	BiasLong  Bias = "LONG"
	BiasShort Bias = "SHORT"
)

// ParseBias maps stored text back to a Bias; anything unknown is BiasNone.
func ParseBias(s string) Bias {
	switch Bias(s) {
	case BiasLong:
		return BiasLong
	case BiasShort:
		return BiasShort
	default:
		return BiasNone
	}
}

// Direction is the side of an order or trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign is +1 for Long and -1 for Short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// PatternKind names the entry pattern that produced a signal.
type PatternKind string

const (
	PatternLong2Bar  PatternKind = "LONG_2BAR"
	PatternLong1Bar  PatternKind = "LONG_1BAR"
	PatternShort2Bar PatternKind = "SHORT_2BAR"
	PatternShort1Bar PatternKind = "SHORT_1BAR"
)

// Direction returns the trade side implied by the pattern.
func (p PatternKind) Direction() Direction {
	if p == PatternShort2Bar || p == PatternShort1Bar {
		return Short
	}
	return Long
}

// Signal is a detected entry opportunity prior to sizing.
type Signal struct {
	Symbol       string
	Pattern      PatternKind
	Timeframe    Timeframe
	Time         time.Time // open time of the bar that completed the pattern
	EntryPrice   float64
	StopPrice    float64
	TakeProfit   float64
	StopDistance float64
	StopPips     float64
	RewardRatio  float64
}

// Direction returns the side implied by the signal's pattern.
func (s Signal) Direction() Direction { return s.Pattern.Direction() }

// ID is the identity used for deduplication.
func (s Signal) ID() string {
	return fmt.Sprintf("%s_%s_%.5f", s.Symbol, s.Pattern, s.EntryPrice)
}

// Order is a sized, ready-to-resolve position request.
type Order struct {
	Symbol     string
	Direction  Direction
	Pattern    PatternKind
	EntryTime  time.Time
	EntryPrice float64
	StopPrice  float64
	TakeProfit float64
	Size       float64
}

// StopDistance is the absolute distance between entry and stop.
func (o Order) StopDistance() float64 {
	d := o.EntryPrice - o.StopPrice
	if d < 0 {
		return -d
	}
	return d
}

// ExitReason explains how a trade was closed.
type ExitReason string

const (
	ExitStop       ExitReason = "STOP"
	ExitTarget     ExitReason = "TARGET"
	ExitUnresolved ExitReason = "UNRESOLVED"
)

// Trade is a closed-position record.
type Trade struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	StopPrice  float64
	TakeProfit float64
	Size       float64
	PnL        float64
	PnLPips    float64
	Commission float64
	ExitReason ExitReason
	BarsHeld   int
}
