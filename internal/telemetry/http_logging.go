package telemetry

import (
	"net/http"
	"time"

	"github.com/italolelis/transfer_monitor/internal/logctx"
)

// responseWriter wraps http.ResponseWriter to capture the status code and the
// response size.
type responseWriter struct {
	http.ResponseWriter

	status       int
	wroteHeader  bool
	bytesWritten int64
}

// wrapResponseWriter creates a new responseWriter with status defaulted to 200 OK.
func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.wroteHeader = true

	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}

	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)

	return n, err
}

// HTTPLogging logs every request: 5xx at error, 4xx at warn, the rest at info.
// The request logger carries the request id so handler logs can be correlated.
func HTTPLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestID(ctx)
		logger := logctx.LoggerFromContext(ctx).With("request_id", requestID)
		start := time.Now()

		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r.WithContext(logctx.WithLogger(ctx, logger)))

		status := wrapped.status
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case status >= 500:
			logger.ErrorContext(ctx, "http request completed", attrs...)
		case status >= 400:
			logger.WarnContext(ctx, "http request completed", attrs...)
		default:
			logger.InfoContext(ctx, "http request completed", attrs...)
		}
	})
}
