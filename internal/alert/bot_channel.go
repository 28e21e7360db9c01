package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	commonhttp "signal-relay/internal/common/http"
)

// DefaultBotAPIBase is the default bot API host.
const DefaultBotAPIBase = "https://api.telegram.org"

// BotChannel sends alerts through a Telegram-style bot HTTP API.
type BotChannel struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// BotOption configures a BotChannel.
type BotOption func(*BotChannel)

// WithBaseURL overrides the API host, used in tests.
func WithBaseURL(baseURL string) BotOption {
	return func(b *BotChannel) {
		b.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) BotOption {
	return func(b *BotChannel) {
		b.httpClient = client
	}
}

// NewBotChannel creates a bot-API channel.
func NewBotChannel(token string, opts ...BotOption) *BotChannel {
	b := &BotChannel{
		baseURL:    DefaultBotAPIBase,
		token:      token,
		httpClient: commonhttp.NewHTTPClientWithTimeout(10 * time.Second),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send posts a sendMessage call for the given chat target.
func (b *BotChannel) Send(ctx context.Context, target, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": target,
		"text":    text,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", b.baseURL, b.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bot API returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
