// Package account tracks backtest capital as trades close.
package account

import (
	"sync"

	"TrendSentinel/internal/model"
)

// Ledger holds the simulated account state with concurrency safety.
type Ledger struct {
	mu    sync.Mutex
	state model.AccountState
}

// NewLedger starts a ledger at capital.
func NewLedger(capital, riskFraction, leverage float64) *Ledger {
	return &Ledger{
		state: model.AccountState{Capital: capital, RiskFraction: riskFraction, Leverage: leverage},
	}
}

// State returns a copy of the current account state.
func (l *Ledger) State() model.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Apply adds the trade's PnL to capital and returns the new balance.
func (l *Ledger) Apply(t model.Trade) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Capital += t.PnL
	return l.state.Capital
}
