package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CommandHandler is called with each user command; a non-empty return
// value is sent back as the reply.
type CommandHandler func(command string) string

// pollTimeout is how long getUpdates may block server-side before
// returning an empty batch.
const pollTimeout = 30 * time.Second

type update struct {
	ID      int `json:"update_id"`
	Message struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// StartPolling long-polls for Telegram commands and blocks until ctx is
// cancelled. Returns immediately when the notifier is unconfigured.
// Commands from chats other than the configured one are ignored.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	if !t.Enabled() {
		return
	}

	// The client timeout sits above the long-poll window so a healthy
	// empty batch never counts as an error. Reuse the notifier's
	// transport to keep polling behind the same proxy as Send.
	client := &http.Client{
		Timeout:   pollTimeout + 5*time.Second,
		Transport: t.Client.Transport,
	}

	offset := 0
	for ctx.Err() == nil {
		batch, err := t.fetchUpdates(ctx, client, offset)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			t.log.Warn().Err(err).Msg("Telegram poll failed")
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range batch {
			offset = u.ID + 1
			t.handleUpdate(u, handler)
		}
	}
	t.log.Info().Msg("Telegram polling stopped")
}

func (t *TelegramNotifier) fetchUpdates(ctx context.Context, client *http.Client, offset int) ([]update, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("timeout", strconv.Itoa(int(pollTimeout.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("getUpdates")+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope struct {
		OK      bool     `json:"ok"`
		Updates []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false (status %d)", resp.StatusCode)
	}
	return envelope.Updates, nil
}

// handleUpdate runs one inbound message through the command handler and
// delivers the reply to the configured chat.
func (t *TelegramNotifier) handleUpdate(u update, handler CommandHandler) {
	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return
	}
	if from := u.Message.Chat.ID; from != 0 && strconv.FormatInt(from, 10) != t.ChatID {
		t.log.Warn().Int64("chat_id", from).Msg("Ignoring command from unknown chat")
		return
	}
	t.log.Info().Str("command", text).Msg("Received command")
	if reply := handler(text); reply != "" {
		if err := t.Send(reply); err != nil {
			t.log.Error().Err(err).Msg("Failed to send command reply")
		}
	}
}
