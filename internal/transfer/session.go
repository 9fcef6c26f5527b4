package transfer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/italolelis/transfer_monitor/internal/notifier"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/telemetry"
	"github.com/jonboulle/clockwork"
)

// Renderer turns a snapshot into the text handed to the sink.
type Renderer func(label progress.Label, s progress.Snapshot) string

// SessionView is a read-only copy of a session's state.
type SessionView struct {
	ID        string
	UserID    string
	Direction progress.Direction
	Label     progress.Label
	Status    Status
	Snapshot  progress.Snapshot
	StartedAt time.Time
}

// DeliveryStats counts what happened to the snapshots of one session.
type DeliveryStats struct {
	Emitted     int
	Suppressed  int
	RateLimited int
	SinkErrors  int
}

// Session is one transfer. Everything except the view fields is touched only
// by the goroutine running the session loop.
type Session struct {
	id        string
	userID    string
	direction progress.Direction
	label     progress.Label
	total     int64
	startedAt time.Time

	tracker  *progress.Tracker
	throttle *notifier.Throttle
	backoff  notifier.Backoff
	sink     notifier.Sink
	render   Renderer
	clock    clockwork.Clock
	tel      *telemetry.Telemetry
	logger   *slog.Logger

	stats          DeliveryStats
	totalMismatch  bool
	finalDelivered bool

	mu     sync.RWMutex
	status Status
	last   progress.Snapshot

	mb *mailbox
}

type sessionConfig struct {
	id        string
	userID    string
	request   Request
	sink      notifier.Sink
	render    Renderer
	clock     clockwork.Clock
	interval  time.Duration
	trackOpts []progress.Option
	tel       *telemetry.Telemetry
	logger    *slog.Logger
}

func newSession(cfg sessionConfig) *Session {
	now := cfg.clock.Now()

	s := &Session{
		id:        cfg.id,
		userID:    cfg.userID,
		direction: cfg.request.Direction,
		label:     cfg.request.Label,
		total:     cfg.request.TotalBytes,
		startedAt: now,
		tracker:   progress.NewTracker(cfg.request.Direction, cfg.request.TotalBytes, now, cfg.trackOpts...),
		throttle:  notifier.NewThrottle(cfg.interval),
		sink:      cfg.sink,
		render:    cfg.render,
		clock:     cfg.clock,
		tel:       cfg.tel,
		logger:    cfg.logger,
		status:    StatusPending,
		mb:        newMailbox(),
	}

	s.last = s.tracker.Snapshot(now)

	if s.render == nil {
		s.render = progress.Render
	}

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

func (s *Session) View() SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionView{
		ID:        s.id,
		UserID:    s.userID,
		Direction: s.direction,
		Label:     s.label,
		Status:    s.status,
		Snapshot:  s.last,
		StartedAt: s.startedAt,
	}
}

// transition moves the session forward. Invalid moves are logged and ignored;
// a terminal session never changes again.
func (s *Session) transition(next Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == next {
		return true
	}

	if s.status == StatusThrottled && next.Terminal() {
		s.status = StatusActive
	}

	if !s.status.CanTransition(next) {
		s.logger.Warn("ignoring invalid status transition", "from", s.status.String(), "to", next.String())

		return false
	}

	s.status = next

	return true
}

func (s *Session) setLast(snap progress.Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

// handleSample feeds one transport sample through the tracker and, when the
// snapshot is due, to the sink.
func (s *Session) handleSample(ctx context.Context, smp sample) {
	if smp.total > 0 && s.total > 0 && smp.total != s.total && !s.totalMismatch {
		s.totalMismatch = true
		s.logger.Debug("transport reported a different total, keeping the session total",
			"reported_total", smp.total, "session_total", s.total)
	}

	clampedBefore := s.tracker.Clamped()

	snap, ok := s.tracker.Update(smp.current, smp.at)
	s.setLast(snap)

	if s.tracker.Clamped() != clampedBefore {
		s.logger.Debug("clamped inconsistent progress sample", "reported", smp.current, "used", snap.CurrentBytes)
	}

	if !ok {
		return
	}

	s.offer(ctx, snap)
}

// offer runs a snapshot through the throttle. While a backoff is active the
// snapshot only replaces the pending one.
func (s *Session) offer(ctx context.Context, snap progress.Snapshot) {
	now := s.clock.Now()

	if s.backoff.Active(now) {
		s.throttle.Offer(snap, now)
		s.stats.Suppressed++

		return
	}

	if _, due := s.throttle.Offer(snap, now); !due {
		s.stats.Suppressed++
		s.tel.RecordNotification(ctx, "suppressed")

		return
	}

	s.deliver(ctx, snap)
}

// deliver calls the sink. Rate limits start a backoff and keep the snapshot
// pending; every other failure is logged and dropped.
func (s *Session) deliver(ctx context.Context, snap progress.Snapshot) {
	err := s.sink.Emit(ctx, s.id, s.render(s.label, snap))
	now := s.clock.Now()

	if err == nil {
		s.throttle.Delivered(now)
		s.finalDelivered = s.finalDelivered || snap.Final
		s.stats.Emitted++
		s.tel.RecordNotification(ctx, "delivered")

		return
	}

	if wait, ok := notifier.RetryAfter(err); ok {
		until := s.backoff.OnRateLimited(now, wait)
		s.stats.RateLimited++
		s.tel.RecordNotification(ctx, "rate_limited")
		s.tel.RecordBackoff(ctx, wait)
		s.transition(StatusThrottled)

		s.logger.Info("notification rate limited, pausing delivery",
			"retry_after", wait.String(), "backoff_until", until.Format(time.RFC3339Nano))

		return
	}

	// A failed attempt still consumes the interval so a broken sink is not
	// hammered on every sample.
	s.throttle.Delivered(now)
	s.stats.SinkErrors++
	s.tel.RecordNotification(ctx, "failed")

	s.logger.Warn("failed to deliver transfer status", "err", err)
}

// resume is called when the backoff deadline has passed. It returns to Active
// and delivers the pending snapshot right away, skipping the interval check.
func (s *Session) resume(ctx context.Context) {
	now := s.clock.Now()
	if s.backoff.Active(now) {
		return
	}

	s.backoff.Clear()
	s.transition(StatusActive)

	s.logger.Debug("notification backoff elapsed")

	if pending, ok := s.throttle.Pending(); ok {
		s.deliver(ctx, pending)
	}
}

// backoffRemaining is how long until resume should be called, zero when no
// backoff is active.
func (s *Session) backoffRemaining() time.Duration {
	return s.backoff.Remaining(s.clock.Now())
}

// complete produces the final snapshot and offers it, unless a final snapshot
// was already delivered or is waiting out a backoff. When a backoff is active
// the final snapshot stays pending and the caller has to wait for it.
func (s *Session) complete(ctx context.Context) progress.Snapshot {
	if s.finalDelivered {
		return s.View().Snapshot
	}

	if pending, ok := s.throttle.Pending(); ok && pending.Final && s.backoff.Active(s.clock.Now()) {
		return pending
	}

	final := s.tracker.Complete(s.clock.Now())
	s.setLast(final)
	s.offer(ctx, final)

	return final
}

// delivered reports whether nothing is left pending.
func (s *Session) delivered() bool {
	_, pending := s.throttle.Pending()

	return !pending
}
