package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"TrendSentinel/internal/bias"
	"TrendSentinel/internal/collector"
	"TrendSentinel/internal/model"
	"TrendSentinel/internal/recorder"
	"TrendSentinel/internal/resolver"
	"TrendSentinel/internal/risk"
	"TrendSentinel/internal/strategy"
)

var eurusd = model.Instrument{Symbol: "EURUSD", PipSize: 0.0001, PipValue: 10, ContractSize: 100000, VolumeMin: 0.01, VolumeMax: 50, VolumeStep: 0.01}

type fakeNotifier struct {
	mu      sync.Mutex
	msgs    []string
	err     error
	retries []int
}

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, maxRetries int) error {
	f.mu.Lock()
	f.retries = append(f.retries, maxRetries)
	f.mu.Unlock()
	return f.Send(text)
}

func (f *fakeNotifier) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return f.err
}

func (f *fakeNotifier) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu         sync.Mutex
	signals    []recorder.SignalEvent
	executions []recorder.ExecutionEvent
}

func (f *fakeRecorder) RecordSignal(evt *recorder.SignalEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, *evt)
	return nil
}

func (f *fakeRecorder) RecordExecution(evt *recorder.ExecutionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, *evt)
	return nil
}

func (f *fakeRecorder) RecordBacktest(string, []model.Trade) error { return nil }
func (f *fakeRecorder) Close() error                               { return nil }

func series(tf model.Timeframe, start time.Time, ohlc ...[4]float64) []model.Bar {
	out := make([]model.Bar, len(ohlc))
	for i, v := range ohlc {
		out[i] = model.Bar{Time: start.Add(time.Duration(i) * tf.Duration()), Open: v[0], High: v[1], Low: v[2], Close: v[3]}
	}
	return out
}

type fixture struct {
	sched *Scheduler
	feed  *collector.MockFeed
	notes *fakeNotifier
	rec   *fakeRecorder
	paper *resolver.PaperBroker
}

func newFixture(t *testing.T, mode string, window TradingWindow) *fixture {
	t.Helper()
	start := time.Date(2024, 5, 6, 6, 0, 0, 0, time.UTC)
	feed := &collector.MockFeed{}
	feed.Set("EURUSD", model.TF1h, series(model.TF1h, start,
		[4]float64{1.1000, 1.1050, 1.0950, 1.0980},
		[4]float64{1.0980, 1.1100, 1.0970, 1.1090},
	))
	feed.Set("EURUSD", model.TF15m, series(model.TF15m, start.Add(2*time.Hour),
		[4]float64{1.1050, 1.1060, 1.1010, 1.1020},
		[4]float64{1.1020, 1.1030, 1.0980, 1.0990},
		[4]float64{1.0990, 1.1045, 1.0985, 1.1040},
	))
	col := &collector.Collector{Feed: feed, IncludeForming: true}

	book, err := bias.NewBook(bias.NewMemoryStore(), model.TF1h, []string{"EURUSD"})
	if err != nil {
		t.Fatal(err)
	}
	instruments := func(string) model.Instrument { return eurusd }
	paper := resolver.NewPaperBroker(col.Quotes(model.TF15m), map[string]model.Instrument{"EURUSD": eurusd}, 10000, 100, 0, resolver.Costs{})
	policy := resolver.RetryPolicy{MaxAttempts: 3}
	executors := []*resolver.Executor{resolver.NewExecutor("paper", paper, risk.NewSizer(risk.DefaultMarginSafety), policy, 0.01, 3)}

	notes, rec := &fakeNotifier{}, &fakeRecorder{}
	opts := Options{
		Mode:            mode,
		Symbols:         []string{"EURUSD"},
		BiasTF:          model.TF1h,
		EntryTF:         model.TF15m,
		BiasBars:        10,
		EntryBars:       3,
		Params:          strategy.DefaultParams(),
		Window:          window,
		ShutdownTimeout: 50 * time.Millisecond,
	}
	s := NewScheduler(context.Background(), opts, col, bias.NewDetector(book, 3, 0), notes, rec, executors, instruments)
	return &fixture{sched: s, feed: feed, notes: notes, rec: rec, paper: paper}
}

var allDay = TradingWindow{StartHour: 0, EndHour: 24, Location: time.UTC}

func TestRunCycle_FirstCycleRunsAllStages(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)

	// minute 7 is not due for either timeframe; the first cycle runs anyway
	if !f.sched.RunCycle(time.Date(2024, 5, 6, 10, 7, 0, 0, time.UTC)) {
		t.Fatal("first cycle did not run")
	}
	if got := f.sched.Detector.Book.Get("EURUSD"); got != model.BiasLong {
		t.Fatalf("expected LONG bias, got %s", got)
	}
	if f.notes.count("BIAS UPDATED") != 1 || f.notes.count("SIGNAL") != 1 || f.notes.count("EXECUTION") != 1 {
		t.Errorf("unexpected notifications %q", f.notes.msgs)
	}
	if len(f.rec.signals) != 1 || !f.rec.signals[0].Executed || f.rec.signals[0].Signal.Pattern != model.PatternLong2Bar {
		t.Fatalf("unexpected signal events %+v", f.rec.signals)
	}
	if len(f.rec.executions) != 1 || f.rec.executions[0].Outcome != string(resolver.Filled) || f.rec.executions[0].Ticket != "paper-1" {
		t.Fatalf("unexpected execution events %+v", f.rec.executions)
	}
	if n, _ := f.paper.OpenPositions(context.Background()); n != 1 {
		t.Errorf("expected 1 open paper position, got %d", n)
	}
	st := f.sched.Status()
	if st.LastSignal != f.rec.signals[0].Signal.ID() || st.CycleID == "" || st.Running {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRunCycle_DueGatingAndDedup(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 7, 0, 0, time.UTC))
	calls := f.feed.Calls()

	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 8, 0, 0, time.UTC))
	if f.feed.Calls() != calls {
		t.Errorf("idle minute fetched bars: %d -> %d", calls, f.feed.Calls())
	}

	// entry stage due again on the same bars: the signal repeats and is dropped
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 15, 0, 0, time.UTC))
	if f.feed.Calls() == calls {
		t.Error("entry stage did not run at minute 15")
	}
	if len(f.rec.signals) != 1 || len(f.rec.executions) != 1 {
		t.Errorf("duplicate signal was dispatched: %d signals, %d executions", len(f.rec.signals), len(f.rec.executions))
	}

	// a new bar with a different entry is a new identity
	start := time.Date(2024, 5, 6, 8, 15, 0, 0, time.UTC)
	f.feed.Set("EURUSD", model.TF15m, series(model.TF15m, start,
		[4]float64{1.1050, 1.1060, 1.1010, 1.1020},
		[4]float64{1.1020, 1.1030, 1.0980, 1.0990},
		[4]float64{1.0990, 1.1050, 1.0985, 1.1048},
	))
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC))
	if len(f.rec.signals) != 2 {
		t.Errorf("expected a second signal, got %d", len(f.rec.signals))
	}
}

func TestRunCycle_NotExecuted(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name   string
		mode   string
		window TradingWindow
		note   string
	}{
		{"signal mode", ModeSignal, allDay, "signal-only mode"},
		{"outside window", ModePaper, TradingWindow{StartHour: 3, EndHour: 12, Location: ny}, "outside trading window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mode, tt.window)
			f.notes.err = errors.New("telegram down")
			// 02:00 UTC is 22:00 in New York
			if !f.sched.RunCycle(time.Date(2024, 5, 7, 2, 0, 0, 0, time.UTC)) {
				t.Fatal("cycle did not run")
			}
			if len(f.rec.signals) != 1 || f.rec.signals[0].Executed || f.rec.signals[0].Note != tt.note {
				t.Fatalf("unexpected signal events %+v", f.rec.signals)
			}
			if len(f.rec.executions) != 0 || f.notes.count("EXECUTION") != 0 {
				t.Error("signal should not have been executed")
			}
		})
	}
}

type downBroker struct{}

var errBridgeDown = fmt.Errorf("bridge: %w", resolver.ErrFatalConnection)

func (downBroker) Quote(context.Context, string) (resolver.Quote, error) {
	return resolver.Quote{}, errBridgeDown
}
func (downBroker) AccountState(context.Context) (model.AccountState, error) {
	return model.AccountState{}, errBridgeDown
}
func (downBroker) OpenPositions(context.Context) (int, error) { return 0, errBridgeDown }
func (downBroker) PlaceMarketOrder(context.Context, resolver.OrderRequest) (resolver.Fill, error) {
	return resolver.Fill{}, errBridgeDown
}

func TestRunCycle_FaultReportRetried(t *testing.T) {
	f := newFixture(t, ModeLive, allDay)
	f.sched.Executors = []*resolver.Executor{
		resolver.NewExecutor("live", downBroker{}, risk.NewSizer(risk.DefaultMarginSafety), resolver.RetryPolicy{MaxAttempts: 5}, 0.01, 0),
	}
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))

	if len(f.rec.executions) != 1 || f.rec.executions[0].Outcome != string(resolver.Fatal) || f.rec.executions[0].Attempts != 1 {
		t.Fatalf("unexpected execution events %+v", f.rec.executions)
	}
	if f.notes.count("EXECUTION") != 1 {
		t.Errorf("fault report not delivered: %q", f.notes.msgs)
	}
	if len(f.notes.retries) != 1 || f.notes.retries[0] != faultRetries {
		t.Errorf("fault report should use bounded retries, got %v", f.notes.retries)
	}
}

func TestRunCycle_FilledReportSentOnce(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	if f.notes.count("EXECUTION") != 1 || len(f.notes.retries) != 0 {
		t.Errorf("filled report should go through plain send, got retries %v", f.notes.retries)
	}
}

func TestRunCycle_FetchFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.feed.Err = errors.New("feed offline")
	if !f.sched.RunCycle(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)) {
		t.Fatal("cycle did not complete")
	}
	if len(f.notes.msgs) != 0 || len(f.rec.signals) != 0 {
		t.Errorf("unexpected output on feed failure: %q", f.notes.msgs)
	}
}

func TestRunCycle_SkipsWhileRunning(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.sched.gate.Lock()
	if f.sched.RunCycle(time.Now()) {
		t.Error("overlapping cycle should be skipped")
	}
	f.sched.gate.Unlock()
	if st := f.sched.Status(); st.Skipped != 1 {
		t.Errorf("expected 1 skipped cycle, got %d", st.Skipped)
	}
	if !f.sched.RunCycle(time.Now()) {
		t.Error("cycle after release should run")
	}
}

func TestRunCycle_RecoversPanic(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	calls := 0
	f.sched.Instruments = func(string) model.Instrument {
		calls++
		if calls == 1 {
			panic("bad instrument table")
		}
		return eurusd
	}
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))

	// the gate was released and the next cycle proceeds
	f.sched.lastIDs = map[string]string{}
	if !f.sched.RunCycle(time.Date(2024, 5, 6, 10, 15, 0, 0, time.UTC)) {
		t.Fatal("cycle after panic did not run")
	}
	if len(f.rec.signals) != 1 {
		t.Errorf("expected the signal on the second cycle, got %d", len(f.rec.signals))
	}
}

func TestStop(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.sched.gate.Lock()
	if f.sched.Stop() {
		t.Error("Stop should time out while a cycle holds the gate")
	}
	f.sched.gate.Unlock()

	g := newFixture(t, ModePaper, allDay)
	if err := g.sched.Register("0 * * * * *"); err != nil {
		t.Fatal(err)
	}
	g.sched.Start()
	if !g.sched.Stop() {
		t.Error("Stop should return once idle")
	}
	if g.sched.RunCycle(time.Now()) {
		t.Error("no cycle may run after Stop")
	}
	if err := g.sched.Register("not a cron"); err == nil {
		t.Error("expected an error for an invalid spec")
	}
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, ModePaper, allDay)
	f.sched.RunCycle(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))

	if got := f.sched.HandleCommand("/bias"); !strings.Contains(got, "EURUSD: LONG") {
		t.Errorf("unexpected /bias reply %q", got)
	}
	if got := f.sched.HandleCommand("/status"); !strings.Contains(got, "Mode: paper") || !strings.Contains(got, "Last signal: EURUSD_LONG_2BAR") {
		t.Errorf("unexpected /status reply %q", got)
	}
	if got := f.sched.HandleCommand("hello"); !strings.Contains(got, "/bias") {
		t.Errorf("unexpected help reply %q", got)
	}
}

func TestTradingWindow(t *testing.T) {
	w := TradingWindow{StartHour: 3, EndHour: 12, Location: time.UTC}
	tests := []struct {
		hour int
		want bool
	}{
		{2, false}, {3, true}, {11, true}, {12, false}, {23, false},
	}
	for _, tt := range tests {
		if got := w.Contains(time.Date(2024, 5, 6, tt.hour, 30, 0, 0, time.UTC)); got != tt.want {
			t.Errorf("hour %d: got %v, want %v", tt.hour, got, tt.want)
		}
	}
}
