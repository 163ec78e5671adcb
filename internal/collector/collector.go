// Package collector retrieves and validates bar series from a feed.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/model"
)

// Collector wraps a feed with closed-bar trimming and series validation.
type Collector struct {
	Feed BarFeed
	// IncludeForming keeps the still-forming last bar.
	IncludeForming bool
	// Now is the clock used to decide whether the newest bar has closed; nil means time.Now.
	Now func() time.Time
}

// NewCollector creates a collector that drops the forming bar.
func NewCollector(feed BarFeed) *Collector {
	return &Collector{Feed: feed}
}

// Bars returns up to count closed bars, oldest first.
func (c *Collector) Bars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	want := count
	if !c.IncludeForming {
		want++
	}
	bars, err := c.Feed.FetchBars(ctx, symbol, tf, want)
	if err != nil {
		return nil, fmt.Errorf("%s bars %s/%s: %w", c.Feed.Name(), symbol, tf, err)
	}
	if !c.IncludeForming {
		bars = dropForming(bars, tf, c.now())
	}
	if err := model.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%s bars %s/%s: %w", c.Feed.Name(), symbol, tf, err)
	}
	bars = model.Last(bars, count)
	log.Debug().Str("symbol", symbol).Str("timeframe", string(tf)).Int("bars", len(bars)).Msg("bars collected")
	return bars, nil
}

func (c *Collector) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// dropForming removes the newest bar when it has not closed by now. At most one
// bar is dropped.
func dropForming(bars []model.Bar, tf model.Timeframe, now time.Time) []model.Bar {
	if n := len(bars); n > 0 && bars[n-1].Time.Add(tf.Duration()).After(now) {
		return bars[:n-1]
	}
	return bars
}

// Quotes returns a source of the latest bar of tf, forming bar included.
func (c *Collector) Quotes(tf model.Timeframe) *QuoteSource {
	return &QuoteSource{feed: c.Feed, tf: tf}
}

// QuoteSource reads the most recent bar of one timeframe.
type QuoteSource struct {
	feed BarFeed
	tf   model.Timeframe
}

// LastBar returns the newest bar, which may still be forming.
func (q *QuoteSource) LastBar(ctx context.Context, symbol string) (model.Bar, error) {
	bars, err := q.feed.FetchBars(ctx, symbol, q.tf, 1)
	if err != nil {
		return model.Bar{}, err
	}
	if len(bars) == 0 {
		return model.Bar{}, fmt.Errorf("%s: no bars for %s/%s", q.feed.Name(), symbol, q.tf)
	}
	return bars[len(bars)-1], nil
}
