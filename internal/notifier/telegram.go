package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultAPIBase is the public Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Notifier delivers formatted text events. Failures are reported, never fatal.
type Notifier interface {
	Send(text string) error
}

// RetrySender is implemented by sinks that can retry a delivery.
type RetrySender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Noop discards every message; used when Telegram is not configured.
type Noop struct{}

func (Noop) Send(string) error { return nil }

// TelegramNotifier posts to a single chat through the Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	Prefix   string // prepended to every message, typically the bot name
	APIBase  string
	Client   *http.Client
}

// NewTelegramNotifier builds a notifier; proxyURL may be empty.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  DefaultAPIBase,
		Client:   &http.Client{Timeout: 30 * time.Second, Transport: proxyTransport(proxyURL)},
	}
}

func proxyTransport(proxyURL string) *http.Transport {
	tr := &http.Transport{}
	if proxyURL == "" {
		return tr
	}
	if u, err := url.Parse(proxyURL); err == nil {
		tr.Proxy = http.ProxyURL(u)
	} else {
		log.Warn().Err(err).Str("proxy", proxyURL).Msg("ignoring malformed proxy url")
	}
	return tr
}

type sendMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Send posts text (HTML parse mode) to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	return t.send(context.Background(), text)
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	msg := sendMessage{ChatID: t.ChatID, Text: t.Prefix + text, ParseMode: "HTML"}
	return t.call(ctx, t.Client, http.MethodPost, "sendMessage", msg, nil)
}

// SendWithRetry retries Send with a doubling delay starting at one second.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var err error
	delay := time.Second
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err = t.send(ctx, text); err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max", maxRetries+1).Dur("backoff", delay).Msg("telegram send failed")
		if !wait(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return fmt.Errorf("telegram: %d attempts failed: %w", maxRetries+1, err)
}

// call invokes a Bot API method. A non-nil body is sent as JSON; a non-nil out
// receives the decoded response.
func (t *TelegramNotifier) call(ctx context.Context, client *http.Client, httpMethod, method string, body, out any) error {
	base := t.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("telegram %s: encode: %w", method, err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	return nil
}

// wait sleeps for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
