package notifier

import (
	"time"

	"github.com/italolelis/transfer_monitor/internal/progress"
)

// DefaultInterval is the minimum time between two status updates of a session.
const DefaultInterval = 2 * time.Second

// Throttle decides which snapshots of one session are worth sending. It keeps
// only the freshest undelivered snapshot; stale progress is worthless.
type Throttle struct {
	interval time.Duration

	emitted  bool
	lastEmit time.Time

	pending    progress.Snapshot
	hasPending bool
}

func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Throttle{interval: interval}
}

// Offer records s as the pending snapshot and reports whether it is due for
// delivery now. The first snapshot and the final snapshot are always due.
func (t *Throttle) Offer(s progress.Snapshot, now time.Time) (progress.Snapshot, bool) {
	t.pending, t.hasPending = s, true

	if s.Final || !t.emitted {
		return s, true
	}

	return s, now.Sub(t.lastEmit) >= t.interval
}

// Delivered marks the pending snapshot as sent at now.
func (t *Throttle) Delivered(now time.Time) {
	t.emitted = true
	t.lastEmit = now
	t.hasPending = false
}

// Pending returns the freshest snapshot not yet delivered.
func (t *Throttle) Pending() (progress.Snapshot, bool) {
	return t.pending, t.hasPending
}

// Drop discards the pending snapshot without counting it as an emission.
func (t *Throttle) Drop() {
	t.hasPending = false
}

// LastEmit reports when the last successful delivery happened.
func (t *Throttle) LastEmit() (time.Time, bool) {
	return t.lastEmit, t.emitted
}
