package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"TrendSentinel/internal/model"
)

// BridgeBroker talks to a trading terminal through its HTTP bridge.
type BridgeBroker struct {
	BaseURL  string
	Token    string
	Leverage float64 // used when the bridge reports none
	Client   *http.Client
}

// NewBridgeBroker creates a bridge client with optional proxy support.
func NewBridgeBroker(baseURL, token, proxyURL string) *BridgeBroker {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &BridgeBroker{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: transport,
		},
	}
}

type bridgeQuote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"`
}

type bridgeAccount struct {
	Balance  float64 `json:"balance"`
	Leverage float64 `json:"leverage"`
}

type bridgePositions struct {
	Count int `json:"count"`
}

type bridgeOrder struct {
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	SL      float64 `json:"sl"`
	TP      float64 `json:"tp"`
	Comment string  `json:"comment,omitempty"`
}

type bridgeResult struct {
	Retcode int     `json:"retcode"`
	Ticket  int64   `json:"ticket"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Comment string  `json:"comment"`
}

// Quote returns the terminal's current bid and ask.
func (b *BridgeBroker) Quote(ctx context.Context, symbol string) (Quote, error) {
	var q bridgeQuote
	if err := b.do(ctx, http.MethodGet, "/quote?symbol="+url.QueryEscape(symbol), nil, &q); err != nil {
		return Quote{}, err
	}
	if q.Bid <= 0 || q.Ask <= 0 {
		return Quote{}, NewBrokerError(CodePriceOff)
	}
	return Quote{Bid: q.Bid, Ask: q.Ask, Time: time.Unix(q.Time, 0).UTC()}, nil
}

// AccountState returns the live balance and leverage.
func (b *BridgeBroker) AccountState(ctx context.Context) (model.AccountState, error) {
	var a bridgeAccount
	if err := b.do(ctx, http.MethodGet, "/account", nil, &a); err != nil {
		return model.AccountState{}, err
	}
	if a.Leverage <= 0 {
		a.Leverage = b.Leverage
	}
	return model.AccountState{Capital: a.Balance, Leverage: a.Leverage}, nil
}

// OpenPositions returns how many positions the account holds.
func (b *BridgeBroker) OpenPositions(ctx context.Context) (int, error) {
	var p bridgePositions
	if err := b.do(ctx, http.MethodGet, "/positions/count", nil, &p); err != nil {
		return 0, err
	}
	return p.Count, nil
}

// PlaceMarketOrder sends a market order; any retcode other than done is a *BrokerError.
func (b *BridgeBroker) PlaceMarketOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	side := "buy"
	if req.Direction == model.Short {
		side = "sell"
	}
	body := bridgeOrder{
		Symbol:  req.Symbol,
		Side:    side,
		Volume:  req.Size,
		Price:   req.Price,
		SL:      req.Stop,
		TP:      req.Target,
		Comment: req.Comment,
	}
	var res bridgeResult
	if err := b.do(ctx, http.MethodPost, "/orders", body, &res); err != nil {
		return Fill{}, err
	}
	if res.Retcode != CodeDone {
		be := NewBrokerError(res.Retcode)
		if res.Comment != "" {
			be.Message = res.Comment
		}
		return Fill{}, be
	}
	return Fill{
		Ticket: strconv.FormatInt(res.Ticket, 10),
		Price:  res.Price,
		Size:   res.Volume,
		Time:   time.Now().UTC(),
	}, nil
}

// do performs one request. Transport and auth failures wrap ErrFatalConnection;
// other non-2xx responses are plain errors and stay retryable.
func (b *BridgeBroker) do(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.Token != "" {
		req.Header.Set("Authorization", "Bearer "+b.Token)
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrFatalConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bridge read body: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrFatalConnection, method, path, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("bridge %s %s: status %d, body: %s", method, path, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("bridge decode %s: %w", path, err)
	}
	return nil
}
