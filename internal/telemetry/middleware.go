package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const unmatchedRoute = "unmatched"

// HTTPMiddleware records request metrics and a span per request. It has to be
// installed on a chi router so the matched route pattern is known.
type HTTPMiddleware struct {
	telemetry *Telemetry
}

func NewHTTPMiddleware(telemetry *Telemetry) *HTTPMiddleware {
	return &HTTPMiddleware{telemetry: telemetry}
}

func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.telemetry == nil || m.telemetry.tracer == nil {
			next.ServeHTTP(w, r)

			return
		}

		start := time.Now()

		m.telemetry.IncrementHTTPInFlight(r.Context())
		defer m.telemetry.DecrementHTTPInFlight(r.Context())

		ctx, span := m.telemetry.Tracer().Start(r.Context(), "http_request")
		defer span.End()

		rw := wrapResponseWriter(w)

		next.ServeHTTP(rw, r.WithContext(ctx))

		route := routePattern(r)

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", rw.status),
			attribute.Int64("http.response_size", rw.bytesWritten),
		)

		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(rw.status))
		}

		m.telemetry.RecordHTTPRequest(ctx, r.Method, route, getStatusClass(rw.status), time.Since(start))
	})
}

// routePattern is the chi pattern that served r, e.g. /api/renames/{user_id}.
// Raw paths carry user ids and would explode metric cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}

	return unmatchedRoute
}

// getStatusClass returns the status class (2xx, 3xx, 4xx, 5xx) for a given status code.
func getStatusClass(statusCode int) string {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return "2xx"
	case statusCode >= http.StatusMultipleChoices && statusCode < http.StatusBadRequest:
		return "3xx"
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return "4xx"
	case statusCode >= http.StatusInternalServerError:
		return "5xx"
	default:
		return "unknown"
	}
}
