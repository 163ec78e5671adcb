package resolver

import (
	"context"
	"math"
	"testing"
	"time"

	"TrendSentinel/internal/model"
)

type stubBars map[string]model.Bar

func (s stubBars) LastBar(_ context.Context, symbol string) (model.Bar, error) { return s[symbol], nil }

func TestPaperBroker_FillAndSettle(t *testing.T) {
	bars := stubBars{"EURUSD": {Time: t0, Open: 1.0990, High: 1.1005, Low: 1.0985, Close: 1.1000}}
	in := map[string]model.Instrument{"EURUSD": {Symbol: "EURUSD", PipSize: 0.0001, PipValue: 10, ContractSize: 100000}}
	p := NewPaperBroker(bars, in, 10000, 100, 0.0002, Costs{})
	p.BarDuration = 15 * time.Minute
	p.now = func() time.Time { return t0 }
	ctx := context.Background()

	q, err := p.Quote(ctx, "EURUSD")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if math.Abs(q.Ask-1.1001) > 1e-12 || math.Abs(q.Bid-1.0999) > 1e-12 {
		t.Errorf("unexpected quote %+v", q)
	}
	fill, err := p.PlaceMarketOrder(ctx, OrderRequest{Symbol: "EURUSD", Direction: model.Long, Size: 0.1, Price: q.Ask, Stop: 1.0950, Target: 1.1101})
	if err != nil || fill.Ticket != "paper-1" {
		t.Fatalf("unexpected fill %+v (%v)", fill, err)
	}
	if n, _ := p.OpenPositions(ctx); n != 1 {
		t.Fatalf("expected 1 open position, got %d", n)
	}

	bars["EURUSD"] = model.Bar{Time: t0.Add(15 * time.Minute), Open: 1.1050, High: 1.1110, Low: 1.1040, Close: 1.1100}
	if n, _ := p.OpenPositions(ctx); n != 0 {
		t.Fatalf("expected position settled, got %d open", n)
	}
	if len(p.closed) != 1 || p.closed[0].ExitReason != model.ExitTarget || p.closed[0].BarsHeld != 2 {
		t.Fatalf("unexpected closed trades %+v", p.closed)
	}
	acct, _ := p.AccountState(ctx)
	if acct.Capital <= 10000 {
		t.Errorf("expected capital to grow after a target, got %.2f", acct.Capital)
	}
}

func TestPaperBroker_RejectsZeroSize(t *testing.T) {
	p := NewPaperBroker(stubBars{}, nil, 1000, 100, 0, Costs{})
	_, err := p.PlaceMarketOrder(context.Background(), OrderRequest{Symbol: "X"})
	if LastCode(err) != 10014 {
		t.Errorf("expected invalid volume code, got %v", err)
	}
}

func TestPaperBroker_BarsHeld(t *testing.T) {
	p := NewPaperBroker(stubBars{}, nil, 1000, 100, 0, Costs{})
	fill := time.Date(2024, 5, 6, 10, 15, 3, 0, time.UTC)
	tests := []struct {
		name string
		dur  time.Duration
		exit time.Time
		want int
	}{
		{"first bar after fill", 15 * time.Minute, time.Date(2024, 5, 6, 10, 15, 0, 0, time.UTC), 1},
		{"third bar", 15 * time.Minute, time.Date(2024, 5, 6, 10, 45, 0, 0, time.UTC), 3},
		{"hourly bars", time.Hour, time.Date(2024, 5, 6, 13, 0, 0, 0, time.UTC), 3},
		{"unknown duration", 0, time.Date(2024, 5, 6, 10, 45, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		p.BarDuration = tt.dur
		if got := p.barsHeld(fill, tt.exit); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got)
		}
	}
}
