package notifier

import (
	"context"
	"errors"

	"github.com/italolelis/transfer_monitor/internal/telemetry"
)

// InstrumentedSink records a span and call metrics around another Sink.
type InstrumentedSink struct {
	name      string
	sink      Sink
	telemetry *telemetry.Telemetry
}

func NewInstrumentedSink(name string, sink Sink, tel *telemetry.Telemetry) *InstrumentedSink {
	return &InstrumentedSink{name: name, sink: sink, telemetry: tel}
}

func (s *InstrumentedSink) Emit(ctx context.Context, sessionID string, text string) error {
	return s.telemetry.InstrumentSinkCall(ctx, s.name, classify, func(ctx context.Context) error {
		return s.sink.Emit(ctx, sessionID, text)
	})
}

// CloseSession forwards to the wrapped sink when it keeps session state.
func (s *InstrumentedSink) CloseSession(sessionID string) {
	if c, ok := s.sink.(Closer); ok {
		c.CloseSession(sessionID)
	}
}

func classify(err error) string {
	var rl *RateLimitedError

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rl):
		return "rate_limited"
	default:
		return "error"
	}
}
