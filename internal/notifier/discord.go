package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const discordMaxContent = 2000

// DiscordNotifier posts status updates to a Discord webhook. The first update
// of a session creates a message; later updates edit it in place.
type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client

	mu       sync.Mutex
	messages map[string]string
}

type discordMessage struct {
	ID string `json:"id"`
}

type discordRateLimit struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Notify sends a standalone message, unrelated to any session.
func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	_, err := d.send(ctx, http.MethodPost, d.WebhookURL, content)

	return err
}

func (d *DiscordNotifier) Emit(ctx context.Context, sessionID string, text string) error {
	if d.WebhookURL == "" {
		return &PermanentError{Sink: "discord", Reason: "webhook URL is not set"}
	}

	if id, ok := d.messageID(sessionID); ok {
		_, err := d.send(ctx, http.MethodPatch, strings.TrimRight(d.WebhookURL, "/")+"/messages/"+id, text)

		return err
	}

	msg, err := d.send(ctx, http.MethodPost, d.WebhookURL+"?wait=true", text)
	if err != nil {
		return err
	}

	if msg.ID != "" {
		d.mu.Lock()
		if d.messages == nil {
			d.messages = make(map[string]string)
		}
		d.messages[sessionID] = msg.ID
		d.mu.Unlock()
	}

	return nil
}

func (d *DiscordNotifier) CloseSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.messages, sessionID)
}

func (d *DiscordNotifier) messageID(sessionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.messages[sessionID]

	return id, ok
}

func (d *DiscordNotifier) send(ctx context.Context, method, url, content string) (*discordMessage, error) {
	if d.WebhookURL == "" {
		return nil, &PermanentError{Sink: "discord", Reason: "webhook URL is not set"}
	}

	payload := map[string]string{"content": truncate(content, discordMaxContent)}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PermanentError{Sink: "discord", Reason: "failed to marshal payload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, &PermanentError{Sink: "discord", Reason: "failed to build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return nil, &PermanentError{Sink: "discord", Reason: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitedError{Sink: "discord", RetryAfter: discordRetryAfter(resp.Header, respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PermanentError{
			Sink:       "discord",
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("webhook failed with status %d", resp.StatusCode),
		}
	}

	var msg discordMessage
	if len(respBody) > 0 {
		_ = json.Unmarshal(respBody, &msg)
	}

	return &msg, nil
}

func (d *DiscordNotifier) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}

	return http.DefaultClient
}

// discordRetryAfter prefers the JSON body, which carries sub-second
// precision, over the Retry-After header.
func discordRetryAfter(h http.Header, body []byte) time.Duration {
	var rl discordRateLimit
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}

	return parseRetryAfterHeader(h.Get("Retry-After"))
}

func parseRetryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}

	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at)
	}

	return 0
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit-1]) + "…"
}
