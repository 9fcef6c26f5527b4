package notifier

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned by a Sink when the remote side asked us to
// slow down. It never fails a transfer; delivery is paused for RetryAfter.
type RateLimitedError struct {
	Sink       string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Sink, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// PermanentError is any delivery failure that is not a rate limit. It is
// logged and dropped by the coordinator.
type PermanentError struct {
	Sink       string
	StatusCode int
	Reason     string
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failed (HTTP %d): %s", e.Sink, e.StatusCode, e.Reason)
	}

	return fmt.Sprintf("%s delivery failed: %s", e.Sink, e.Reason)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// RetryAfter reports the wait requested by a rate-limit error anywhere in
// err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}

	return 0, false
}
