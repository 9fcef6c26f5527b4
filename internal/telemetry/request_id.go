package telemetry

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey    ctxKey = "request_id"
	RequestIDHeader        = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestID reuses an upstream X-Request-ID or generates one, stores it in the
// context and echoes it in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}

	return ""
}
