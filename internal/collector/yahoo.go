package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"TrendSentinel/internal/model"
)

// DefaultYahooBase is the public chart API host.
const DefaultYahooBase = "https://query1.finance.yahoo.com"

// YahooFeed implements BarFeed using the Yahoo Finance chart API.
type YahooFeed struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker, e.g. EURUSD -> EURUSD=X
}

// NewYahooFeed creates a new Yahoo Finance feed.
func NewYahooFeed(proxyURL string, symbolMap map[string]string) *YahooFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if symbolMap == nil {
		symbolMap = map[string]string{}
	}
	return &YahooFeed{
		BaseURL: DefaultYahooBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: symbolMap,
	}
}

func (f *YahooFeed) Name() string { return "yahoo" }

func (f *YahooFeed) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooIntervals maps timeframes to chart intervals; 4hour is built from 60m.
var yahooIntervals = map[model.Timeframe]struct {
	interval string
	base     model.Timeframe
}{
	model.TF1m:  {"1m", model.TF1m},
	model.TF5m:  {"5m", model.TF5m},
	model.TF15m: {"15m", model.TF15m},
	model.TF30m: {"30m", model.TF30m},
	model.TF1h:  {"60m", model.TF1h},
	model.TF4h:  {"60m", model.TF1h},
	model.TF1d:  {"1d", model.TF1d},
}

// yahooRange picks the shortest range covering span, with room for weekends.
func yahooRange(span time.Duration) string {
	span = span * 3 / 2
	day := 24 * time.Hour
	switch {
	case span <= day:
		return "1d"
	case span <= 5*day:
		return "5d"
	case span <= 30*day:
		return "1mo"
	case span <= 90*day:
		return "3mo"
	case span <= 180*day:
		return "6mo"
	case span <= 365*day:
		return "1y"
	}
	return "2y"
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []interface{} `json:"open"`
					High  []interface{} `json:"high"`
					Low   []interface{} `json:"low"`
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (f *YahooFeed) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	iv, ok := yahooIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("yahoo: unsupported timeframe %q", tf)
	}
	bars, err := f.fetchChart(ctx, symbol, iv.interval, yahooRange(time.Duration(count+1)*tf.Duration()))
	if err != nil {
		return nil, err
	}
	if iv.base != tf {
		bars = Resample(bars, tf)
	}
	return model.Last(bars, count), nil
}

func (f *YahooFeed) fetchChart(ctx context.Context, symbol, interval, rng string) ([]model.Bar, error) {
	base := f.BaseURL
	if base == "" {
		base = DefaultYahooBase
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		base, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.Bar, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}
		bars = append(bars, model.Bar{
			Time:  time.Unix(ts, 0).UTC(),
			Open:  o,
			High:  h,
			Low:   l,
			Close: c,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
