package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"TrendSentinel/internal/model"
	"TrendSentinel/internal/risk"
)

type fakeBroker struct {
	quotes    []Quote
	placeErrs []error
	open      int
	capital   float64
	acctErr   error

	quoteCalls int
	acctCalls  int
	placed     []OrderRequest
}

func (f *fakeBroker) Quote(context.Context, string) (Quote, error) {
	q := f.quotes[min(f.quoteCalls, len(f.quotes)-1)]
	f.quoteCalls++
	return q, nil
}

func (f *fakeBroker) AccountState(context.Context) (model.AccountState, error) {
	f.acctCalls++
	if f.acctErr != nil {
		return model.AccountState{}, f.acctErr
	}
	return model.AccountState{Capital: f.capital, Leverage: 100}, nil
}

func (f *fakeBroker) OpenPositions(context.Context) (int, error) { return f.open, nil }

func (f *fakeBroker) PlaceMarketOrder(_ context.Context, req OrderRequest) (Fill, error) {
	f.placed = append(f.placed, req)
	if i := len(f.placed) - 1; i < len(f.placeErrs) && f.placeErrs[i] != nil {
		return Fill{}, f.placeErrs[i]
	}
	return Fill{Ticket: fmt.Sprintf("T%d", len(f.placed)), Price: req.Price, Size: req.Size}, nil
}

var eurusd = model.Instrument{Symbol: "EURUSD", PipSize: 0.0001, PipValue: 10, ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01}

func longSignal() model.Signal {
	return model.Signal{Symbol: "EURUSD", Pattern: model.PatternLong2Bar, EntryPrice: 1.1000, StopPrice: 1.0950, TakeProfit: 1.1150, StopDistance: 0.0050, RewardRatio: 3}
}

func newTestExecutor(b Broker, attempts, maxOpen int) (*Executor, *[]time.Duration) {
	policy := RetryPolicy{MaxAttempts: attempts, BaseDelay: 500 * time.Millisecond, Step: 50 * time.Millisecond, MaxDelay: 600 * time.Millisecond}
	e := NewExecutor("demo", b, risk.NewSizer(0), policy, 0.01, maxOpen)
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func TestExecute_FillsAfterTransientFailures(t *testing.T) {
	b := &fakeBroker{
		quotes:    []Quote{{Bid: 1.1000, Ask: 1.1001}},
		placeErrs: []error{NewBrokerError(CodeRequote), NewBrokerError(CodePriceChanged), NewBrokerError(CodeRejected)},
		capital:   10000,
	}
	e, slept := newTestExecutor(b, 10, 0)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Kind != Filled || out.Attempts != 4 || out.Fill.Ticket != "T4" {
		t.Errorf("unexpected outcome %+v", out)
	}
	want := []time.Duration{550 * time.Millisecond, 600 * time.Millisecond, 600 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), *slept)
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d: expected %s, got %s", i, d, (*slept)[i])
		}
	}
	if b.acctCalls != 4 {
		t.Errorf("account state must be refreshed every attempt, got %d calls", b.acctCalls)
	}
	// 100 at risk over 51 pips from the ask.
	if got := b.placed[3].Size; got != 0.2 {
		t.Errorf("expected size 0.2 from the live ask, got %v", got)
	}
}

func TestExecute_Exhausted(t *testing.T) {
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = NewBrokerError(CodeRequote)
	}
	errs[4] = NewBrokerError(CodePriceOff)
	b := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1}}, placeErrs: errs, capital: 10000}
	e, slept := newTestExecutor(b, 5, 0)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if out.Kind != Exhausted || out.Attempts != 5 || out.LastCode != CodePriceOff {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(*slept) != 4 {
		t.Errorf("no sleep expected after the final attempt, got %d", len(*slept))
	}
}

func TestExecute_CapacityNotRetried(t *testing.T) {
	b := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1}}, open: 3, capital: 10000}
	e, slept := newTestExecutor(b, 10, 3)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if out.Kind != CapacityExceeded || out.Attempts != 1 || len(*slept) != 0 || len(b.placed) != 0 {
		t.Errorf("capacity must stop without retry, got %+v", out)
	}
}

func TestExecute_ZeroSizeDiscarded(t *testing.T) {
	b := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1001}}, capital: 0}
	e, slept := newTestExecutor(b, 1000, 0)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if !errors.Is(err, model.ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
	if out.Kind != Discarded || out.Attempts != 1 || b.acctCalls != 1 {
		t.Errorf("zero size must be discarded after one attempt, got %+v (%d account calls)", out, b.acctCalls)
	}
	if len(*slept) != 0 || len(b.placed) != 0 {
		t.Errorf("expected no sleeps and no placement, got %v and %d orders", *slept, len(b.placed))
	}
}

func TestExecute_FatalConnection(t *testing.T) {
	b := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1}}, acctErr: fmt.Errorf("login 1234: %w", ErrFatalConnection)}
	e, _ := newTestExecutor(b, 10, 0)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if !errors.Is(err, ErrFatalConnection) || out.Kind != Fatal || out.Attempts != 1 {
		t.Errorf("expected fatal outcome after one attempt, got %+v (%v)", out, err)
	}
}

func TestExecute_RevalidatesLevels(t *testing.T) {
	b := &fakeBroker{
		quotes:  []Quote{{Bid: 1.0940, Ask: 1.0941}, {Bid: 1.1160, Ask: 1.1161}, {Bid: 1.1000, Ask: 1.1001}},
		capital: 10000,
	}
	e, _ := newTestExecutor(b, 10, 0)
	out, err := e.Execute(context.Background(), longSignal(), eurusd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Attempts != 3 || len(b.placed) != 1 {
		t.Errorf("expected two rejected quotes before placement, got %+v with %d placements", out, len(b.placed))
	}
}

func TestExecuteAll_EveryAccount(t *testing.T) {
	full := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1}}, open: 5, capital: 10000}
	ok := &fakeBroker{quotes: []Quote{{Bid: 1.1, Ask: 1.1}}, capital: 5000}
	a, _ := newTestExecutor(full, 3, 5)
	b, _ := newTestExecutor(ok, 3, 5)
	b.Account = "second"
	outs := ExecuteAll(context.Background(), []*Executor{a, b}, longSignal(), eurusd)
	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[0].Kind != CapacityExceeded || outs[1].Kind != Filled || outs[1].Account != "second" {
		t.Errorf("unexpected outcomes %+v", outs)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 550 * time.Millisecond},
		{10, time.Second},
		{90, 5 * time.Second},
		{500, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
		code      int
	}{
		{NewBrokerError(CodeRequote), true, CodeRequote},
		{fmt.Errorf("place: %w", NewBrokerError(CodeRejected)), true, CodeRejected},
		{fmt.Errorf("%w: long", ErrPriceMoved), true, 0},
		{fmt.Errorf("dial: %w", ErrFatalConnection), false, 0},
		{ErrCapacityExceeded, false, 0},
		{fmt.Errorf("%w: zero size", model.ErrInvalidSignal), false, 0},
		{context.Canceled, false, 0},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v", tt.err, got)
		}
		if got := LastCode(tt.err); got != tt.code {
			t.Errorf("LastCode(%v) = %d", tt.err, got)
		}
	}
	if CodeMessage(CodeRequote) != "Requote" || CodeMessage(1) != "unknown code 1" {
		t.Errorf("unexpected code messages")
	}
}
