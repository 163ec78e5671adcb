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

	"github.com/rs/zerolog/log"

	"TrendSentinel/internal/model"
)

// RESTFeed implements BarFeed over a JSON bars endpoint.
type RESTFeed struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTFeed creates a new feed with optional proxy support.
func NewRESTFeed(baseURL, apiKey, proxyURL string) *RESTFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &RESTFeed{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *RESTFeed) Name() string { return "rest" }

// restBar is the expected JSON shape from the bars endpoint.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// FetchBars requests tf directly. Periods above one hour that the endpoint
// rejects are rebuilt from hourly bars.
func (f *RESTFeed) FetchBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	bars, err := f.fetchBars(ctx, symbol, tf, count)
	if err == nil || tf.Duration() <= time.Hour {
		return bars, err
	}
	hourly, hourlyErr := f.fetchBars(ctx, symbol, model.TF1h, sourceCount(model.TF1h, tf, count))
	if hourlyErr != nil {
		return nil, fmt.Errorf("%s fetch failed: %w; hourly fallback also failed: %w", tf, err, hourlyErr)
	}
	log.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("resampled from hourly bars")
	return model.Last(Resample(hourly, tf), count), nil
}

func (f *RESTFeed) fetchBars(ctx context.Context, symbol string, tf model.Timeframe, count int) ([]model.Bar, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bars?symbol=%s&period=%s&limit=%d", f.BaseURL, url.QueryEscape(symbol), tf, count)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, string(body))
	}
	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}
	bars := make([]model.Bar, len(raw))
	for i, rb := range raw {
		bars[i] = model.Bar{
			Time:  time.Unix(rb.Timestamp, 0).UTC(),
			Open:  rb.Open,
			High:  rb.High,
			Low:   rb.Low,
			Close: rb.Close,
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}
