package collector

import (
	"context"
	"sync"
	"time"

	"TrendSentinel/internal/model"
)

// MockFeed returns controllable fixed data for development and testing.
type MockFeed struct {
	mu    sync.Mutex
	Price float64
	Bars  map[string][]model.Bar // keyed by symbol + "/" + timeframe
	Err   error
	calls int
}

func (m *MockFeed) Name() string { return "mock" }

// Set replaces the series of (symbol, tf).
func (m *MockFeed) Set(symbol string, tf model.Timeframe, bars []model.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Bars == nil {
		m.Bars = map[string][]model.Bar{}
	}
	m.Bars[symbol+"/"+string(tf)] = bars
}

// Calls returns how many fetches were served.
func (m *MockFeed) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockFeed) FetchBars(_ context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[symbol+"/"+string(tf)]; ok {
		return append([]model.Bar(nil), model.Last(bars, count)...), nil
	}
	return generateMockBars(m.Price, tf, count), nil
}

func generateMockBars(basePrice float64, tf model.Timeframe, count int) []model.Bar {
	d := tf.Duration()
	if d <= 0 {
		d = time.Hour
	}
	end := time.Now().UTC().Truncate(d)
	bars := make([]model.Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:  end.Add(-time.Duration(count-1-i) * d),
			Open:  p * 0.999,
			High:  p * 1.005,
			Low:   p * 0.995,
			Close: p,
		}
	}
	return bars
}
