package collector

import (
	"context"

	"TrendSentinel/internal/model"
)

// BarFeed supplies OHLC bars for a symbol and timeframe, oldest first.
// The last bar may still be forming.
type BarFeed interface {
	FetchBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error)
	Name() string
}
