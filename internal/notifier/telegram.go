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

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API. With an empty
// token or chat id every method is a silent no-op, so callers never need
// to branch on configuration.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client

	log zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  defaultAPIBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: proxyTransport(proxyURL),
		},
		log: log.With().Str("component", "notifier").Logger(),
	}
}

// proxyTransport returns a transport routed through proxyURL, or a
// direct one when the URL is empty or unparseable.
func proxyTransport(proxyURL string) *http.Transport {
	tr := &http.Transport{}
	if proxyURL == "" {
		return tr
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return tr
	}
	tr.Proxy = http.ProxyURL(u)
	return tr
}

// Enabled reports whether the notifier is configured to send anything.
func (t *TelegramNotifier) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// endpoint builds the bot API URL for one method.
func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
}

// Send delivers one HTML-formatted message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	if !t.Enabled() {
		return nil
	}
	payload, err := json.Marshal(struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}{t.ChatID, text, "HTML"})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := t.Client.Post(t.endpoint("sendMessage"), "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sendMessage: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// SendWithRetry retries Send with exponential backoff until it succeeds,
// the attempts run out, or ctx ends.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	if !t.Enabled() {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = t.Send(text)
		if lastErr == nil {
			return nil
		}
		if attempt == maxRetries {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		t.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("backoff", wait).Msg("Telegram send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, lastErr)
}
