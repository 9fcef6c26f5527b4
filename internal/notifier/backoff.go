package notifier

import "time"

const minRetryAfter = time.Second

// Backoff pauses delivery after the sink signalled a rate limit.
type Backoff struct {
	until time.Time
}

// OnRateLimited starts (or extends) a pause lasting retryAfter from now and
// returns when it ends. Non-positive waits are raised to one second.
func (b *Backoff) OnRateLimited(now time.Time, retryAfter time.Duration) time.Time {
	if retryAfter <= 0 {
		retryAfter = minRetryAfter
	}

	if until := now.Add(retryAfter); until.After(b.until) {
		b.until = until
	}

	return b.until
}

// Active reports whether delivery is still paused at now.
func (b *Backoff) Active(now time.Time) bool {
	return !b.until.IsZero() && now.Before(b.until)
}

// Until returns the end of the current pause, zero when none was set.
func (b *Backoff) Until() time.Time {
	return b.until
}

// Remaining is how long delivery stays paused after now.
func (b *Backoff) Remaining(now time.Time) time.Duration {
	if !b.Active(now) {
		return 0
	}

	return b.until.Sub(now)
}

func (b *Backoff) Clear() {
	b.until = time.Time{}
}
