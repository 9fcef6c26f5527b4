package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier_SendThenEdit(t *testing.T) {
	var methods []string

	var lastPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&lastPayload)
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	tg := &TelegramNotifier{Token: "abc", ChatID: "99", BaseURL: srv.URL}

	require.NoError(t, tg.Emit(context.Background(), "s1", "one"))
	require.NoError(t, tg.Emit(context.Background(), "s1", "two"))

	assert.Equal(t, []string{"/botabc/sendMessage", "/botabc/editMessageText"}, methods)
	assert.Equal(t, float64(7), lastPayload["message_id"])
	assert.Equal(t, "two", lastPayload["text"])
}

func TestTelegramNotifier_FloodWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`))
	}))
	defer srv.Close()

	tg := &TelegramNotifier{Token: "abc", ChatID: "99", BaseURL: srv.URL}

	d, ok := RetryAfter(tg.Emit(context.Background(), "s1", "one"))
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestTelegramNotifier_NotModifiedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`))
	}))
	defer srv.Close()

	tg := &TelegramNotifier{Token: "abc", ChatID: "99", BaseURL: srv.URL}

	assert.NoError(t, tg.Emit(context.Background(), "s1", "same"))
}

func TestTelegramNotifier_PermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	tg := &TelegramNotifier{Token: "abc", ChatID: "99", BaseURL: srv.URL}

	var pe *PermanentError
	require.True(t, errors.As(tg.Emit(context.Background(), "s1", "x"), &pe))
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.Contains(t, pe.Reason, "blocked")
}
