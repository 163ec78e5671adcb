package recorder

import "TrendSentinel/internal/model"

// SignalEvent records a detected signal and what the orchestrator did with it.
type SignalEvent struct {
	CycleID  string
	Signal   model.Signal
	Bias     model.Bias
	Executed bool
	Note     string // why the signal was not executed, if it wasn't
}

// ExecutionEvent records the outcome of one signal on one account.
type ExecutionEvent struct {
	CycleID  string
	SignalID string
	Account  string
	Symbol   string
	Outcome  string // "filled", "capacity_exceeded", "exhausted", "fatal"
	Ticket   string
	Price    float64
	Size     float64
	Attempts int
	LastCode int
	Error    string
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordSignal(evt *SignalEvent) error
	RecordExecution(evt *ExecutionEvent) error
	RecordBacktest(runID string, trades []model.Trade) error
	Close() error
}
