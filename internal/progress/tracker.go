package progress

import "time"

const (
	// DefaultSampleInterval is the shortest interval a speed reading is taken over.
	DefaultSampleInterval = 500 * time.Millisecond

	// DefaultWindowSize is how many instantaneous speeds are averaged.
	DefaultWindowSize = 5
)

// Option configures a Tracker.
type Option func(*Tracker)

func WithSampleInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.sampleInterval = d
		}
	}
}

func WithWindowSize(n int) Option {
	return func(t *Tracker) {
		t.window = newSpeedWindow(n)
	}
}

// Tracker turns raw byte counts into snapshots with a smoothed speed and ETA.
// It is not safe for concurrent use; each session owns exactly one tracker.
type Tracker struct {
	direction Direction
	total     int64
	current   int64
	start     time.Time

	lastSampleTime  time.Time
	lastSampleBytes int64

	sampleInterval time.Duration
	window         *speedWindow

	clamped int
}

func NewTracker(direction Direction, totalBytes int64, start time.Time, opts ...Option) *Tracker {
	if totalBytes < 0 {
		totalBytes = 0
	}

	t := &Tracker{
		direction:      direction,
		total:          totalBytes,
		start:          start,
		lastSampleTime: start,
		sampleInterval: DefaultSampleInterval,
		window:         newSpeedWindow(DefaultWindowSize),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Update records a byte count observed at now. The returned bool is false when
// the call came too soon after the last accepted sample to produce a speed
// reading; such calls still advance the byte count. Reaching the total always
// produces an emittable final snapshot.
func (t *Tracker) Update(currentBytes int64, now time.Time) (Snapshot, bool) {
	t.current = t.clamp(currentBytes)

	final := t.total > 0 && t.current == t.total

	elapsed := now.Sub(t.lastSampleTime)
	if elapsed >= t.sampleInterval && elapsed > 0 {
		speed := float64(t.current-t.lastSampleBytes) / elapsed.Seconds()
		t.window.push(speed)

		t.lastSampleTime = now
		t.lastSampleBytes = t.current

		return t.snapshot(now, final), true
	}

	return t.snapshot(now, final), final
}

// Snapshot returns the current state without recording a sample.
func (t *Tracker) Snapshot(now time.Time) Snapshot {
	return t.snapshot(now, t.total > 0 && t.current == t.total)
}

// Complete moves the byte count to the total. Used when the transport reports
// success without a last callback at the full size.
func (t *Tracker) Complete(now time.Time) Snapshot {
	if t.total > 0 {
		t.current = t.total
	}

	return t.snapshot(now, true)
}

// Clamped reports how many samples had to be corrected to keep the byte count
// monotonic and within the total.
func (t *Tracker) Clamped() int {
	return t.clamped
}

func (t *Tracker) clamp(v int64) int64 {
	switch {
	case v < t.current:
		t.clamped++

		return t.current
	case t.total > 0 && v > t.total:
		t.clamped++

		return t.total
	default:
		return v
	}
}

func (t *Tracker) snapshot(now time.Time, final bool) Snapshot {
	s := Snapshot{
		Direction:    t.direction,
		CurrentBytes: t.current,
		TotalBytes:   t.total,
		Speed:        t.window.mean(),
		Elapsed:      now.Sub(t.start),
		Final:        final,
		TakenAt:      now,
	}

	if s.Elapsed < 0 {
		s.Elapsed = 0
	}

	if t.total > 0 {
		s.Percentage = 100 * float64(t.current) / float64(t.total)
	}

	switch {
	case t.total > 0 && t.current == t.total:
		s.ETA, s.ETAKnown = 0, true
	case t.total > 0 && s.Speed > 0:
		s.ETA = time.Duration(float64(t.total-t.current) / s.Speed * float64(time.Second))
		s.ETAKnown = true
	}

	return s
}
