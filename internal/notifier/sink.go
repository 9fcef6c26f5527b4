package notifier

import "context"

// Sink delivers rendered status text for a session. Emit returns nil,
// a *RateLimitedError or a *PermanentError. Calling Emit again with the same
// session id updates the earlier message where the sink supports it.
type Sink interface {
	Emit(ctx context.Context, sessionID string, text string) error
}

// Closer is implemented by sinks that keep per-session state, such as the id
// of the message being edited.
type Closer interface {
	CloseSession(sessionID string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, sessionID string, text string) error

func (f SinkFunc) Emit(ctx context.Context, sessionID string, text string) error {
	return f(ctx, sessionID, text)
}
