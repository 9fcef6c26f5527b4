package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	telegramAPIBase    = "https://api.telegram.org"
	telegramMaxMessage = 4096
)

// TelegramNotifier sends status updates through the Telegram Bot API,
// editing one message per session.
type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string
	Client  *http.Client

	mu       sync.Mutex
	messages map[string]int64
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *TelegramNotifier) Emit(ctx context.Context, sessionID string, text string) error {
	if t.Token == "" || t.ChatID == "" {
		return &PermanentError{Sink: "telegram", Reason: "bot token or chat id is not set"}
	}

	payload := map[string]any{
		"chat_id": t.ChatID,
		"text":    truncate(text, telegramMaxMessage),
	}

	method := "sendMessage"
	if id, ok := t.messageID(sessionID); ok {
		method = "editMessageText"
		payload["message_id"] = id
	}

	res, err := t.call(ctx, method, payload)
	if err != nil {
		return err
	}

	if method == "sendMessage" && res.Result.MessageID != 0 {
		t.mu.Lock()
		if t.messages == nil {
			t.messages = make(map[string]int64)
		}
		t.messages[sessionID] = res.Result.MessageID
		t.mu.Unlock()
	}

	return nil
}

func (t *TelegramNotifier) CloseSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.messages, sessionID)
}

func (t *TelegramNotifier) messageID(sessionID string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.messages[sessionID]

	return id, ok
}

func (t *TelegramNotifier) call(ctx context.Context, method string, payload map[string]any) (*telegramResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &PermanentError{Sink: "telegram", Reason: "failed to marshal payload", Err: err}
	}

	base := t.BaseURL
	if base == "" {
		base = telegramAPIBase
	}

	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(base, "/"), t.Token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &PermanentError{Sink: "telegram", Reason: "failed to build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &PermanentError{Sink: "telegram", Reason: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	var res telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, &PermanentError{Sink: "telegram", StatusCode: resp.StatusCode, Reason: "failed to decode response", Err: err}
	}

	switch {
	case res.OK:
		return &res, nil
	case res.ErrorCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{Sink: "telegram", RetryAfter: time.Duration(res.Parameters.RetryAfter) * time.Second}
	case strings.Contains(res.Description, "message is not modified"):
		return &res, nil
	default:
		return nil, &PermanentError{Sink: "telegram", StatusCode: resp.StatusCode, Reason: res.Description}
	}
}
