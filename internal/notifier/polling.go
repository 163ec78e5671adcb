package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CommandHandler maps an incoming chat command to its reply; "" sends nothing.
type CommandHandler func(command string) string

const (
	pollTimeout = 30 * time.Second
	pollRetry   = 5 * time.Second
)

type update struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
	} `json:"message"`
}

type updatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// StartPolling long-polls getUpdates and answers commands until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	client := &http.Client{Timeout: pollTimeout + 5*time.Second}
	if t.Client != nil {
		client.Transport = t.Client.Transport
	}

	offset := 0
	for ctx.Err() == nil {
		updates, err := t.getUpdates(ctx, client, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn().Err(err).Msg("telegram polling failed")
			if !wait(ctx, pollRetry) {
				break
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			t.dispatch(ctx, u, handler)
		}
	}
	log.Info().Msg("telegram polling stopped")
}

func (t *TelegramNotifier) getUpdates(ctx context.Context, client *http.Client, offset int) ([]update, error) {
	var res updatesResponse
	method := fmt.Sprintf("getUpdates?offset=%d&timeout=%d", offset, int(pollTimeout.Seconds()))
	if err := t.call(ctx, client, http.MethodGet, method, nil, &res); err != nil {
		return nil, err
	}
	return res.Result, nil
}

func (t *TelegramNotifier) dispatch(ctx context.Context, u update, handler CommandHandler) {
	if u.Message == nil {
		return
	}
	cmd := strings.TrimSpace(u.Message.Text)
	if cmd == "" {
		return
	}
	log.Info().Str("command", cmd).Int("update_id", u.UpdateID).Msg("received command")
	if reply := handler(cmd); reply != "" {
		if err := t.send(ctx, reply); err != nil {
			log.Error().Err(err).Str("command", cmd).Msg("reply failed")
		}
	}
}
