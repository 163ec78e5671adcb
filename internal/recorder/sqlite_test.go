package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"TrendSentinel/internal/bias"
	"TrendSentinel/internal/model"
)

func openTest(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func count(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestBiasStore(t *testing.T) {
	r := openTest(t)
	var _ bias.Store = r

	if _, ok, err := r.LoadBias("EURUSD", model.TF4h); err != nil || ok {
		t.Fatalf("expected no bias, got ok=%v err=%v", ok, err)
	}
	for _, b := range []model.Bias{model.BiasLong, model.BiasShort} {
		if err := r.SaveBias("EURUSD", model.TF4h, b); err != nil {
			t.Fatal(err)
		}
	}
	got, ok, err := r.LoadBias("EURUSD", model.TF4h)
	if err != nil || !ok || got != model.BiasShort {
		t.Errorf("expected SHORT, got %s ok=%v err=%v", got, ok, err)
	}
	if n := count(t, r, "bias_state"); n != 1 {
		t.Errorf("expected one row per key, got %d", n)
	}
}

func TestRecordSignalAndExecution(t *testing.T) {
	r := openTest(t)
	sig := model.Signal{Symbol: "EURUSD", Pattern: model.PatternLong2Bar, Timeframe: model.TF15m, Time: time.Now(), EntryPrice: 1.1, StopPrice: 1.095, TakeProfit: 1.115, StopDistance: 0.005, RewardRatio: 3}
	if err := r.RecordSignal(&SignalEvent{CycleID: "c1", Signal: sig, Bias: model.BiasLong, Executed: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordExecution(&ExecutionEvent{CycleID: "c1", SignalID: sig.ID(), Account: "demo", Symbol: "EURUSD", Outcome: "filled", Ticket: "T1", Price: 1.1001, Size: 0.2, Attempts: 2}); err != nil {
		t.Fatal(err)
	}

	var signalID string
	if err := r.db.QueryRow("SELECT signal_id FROM signals").Scan(&signalID); err != nil {
		t.Fatal(err)
	}
	if signalID != "EURUSD_LONG_2BAR_1.10000" {
		t.Errorf("unexpected signal id %q", signalID)
	}
	if n := count(t, r, "executions"); n != 1 {
		t.Errorf("expected 1 execution, got %d", n)
	}
}

func TestRecordBacktest(t *testing.T) {
	r := openTest(t)
	trades := []model.Trade{
		{Symbol: "EURUSD", Direction: model.Long, PnL: 10, ExitReason: model.ExitTarget},
		{Symbol: "EURUSD", Direction: model.Short, PnL: -5, ExitReason: model.ExitStop},
	}
	if err := r.RecordBacktest("run-1", trades); err != nil {
		t.Fatal(err)
	}
	if n := count(t, r, "backtest_trades"); n != 2 {
		t.Errorf("expected 2 trades, got %d", n)
	}
}
