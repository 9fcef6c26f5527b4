package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/transfer_monitor/internal/logctx"
	"github.com/italolelis/transfer_monitor/internal/notifier"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/italolelis/transfer_monitor/internal/telemetry"
	"github.com/jonboulle/clockwork"
)

const (
	releaseTimeout = 5 * time.Second

	// DefaultFinalDeliveryTimeout bounds how long a completed session waits for
	// a rate-limit backoff to end so it can deliver its final snapshot.
	DefaultFinalDeliveryTimeout = time.Minute

	// DefaultLockRenewInterval is how often a held lease extends its lock.
	DefaultLockRenewInterval = time.Minute
)

// ProgressFunc is the callback handed to the transport. It may be called at
// any rate and never blocks.
type ProgressFunc func(current, total int64)

// TransportFunc moves the bytes of one session, reporting progress as it goes.
type TransportFunc func(ctx context.Context, report ProgressFunc) error

// ArtifactRemover deletes the partial output of a failed or cancelled session.
type ArtifactRemover interface {
	RemoveArtifact(ctx context.Context, path string) error
}

// Request describes the session to run.
type Request struct {
	Direction  progress.Direction
	TotalBytes int64
	Label      progress.Label

	// Artifact is the local file removed when the session does not complete.
	Artifact string
}

// Result is what a finished session reports back.
type Result struct {
	SessionID string
	Status    Status
	Snapshot  progress.Snapshot
	Stats     DeliveryStats
	Duration  time.Duration
}

// Config holds the timing knobs of the coordinator.
type Config struct {
	NotifyInterval       time.Duration
	SampleInterval       time.Duration
	WindowSize           int
	FinalDeliveryTimeout time.Duration

	// LockRenewInterval must stay well below the lock backend's TTL.
	LockRenewInterval time.Duration
}

// Coordinator runs sessions: it owns the per-user lock, feeds transport
// samples through the tracker and throttle and drives the sink.
type Coordinator struct {
	locker  Locker
	sink    notifier.Sink
	render  Renderer
	clock   clockwork.Clock
	remover ArtifactRemover
	tel     *telemetry.Telemetry
	cfg     Config

	mu     sync.Mutex
	leases map[string]*Lease
}

type CoordinatorOption func(*Coordinator)

func WithClock(clk clockwork.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clk }
}

func WithRenderer(r Renderer) CoordinatorOption {
	return func(c *Coordinator) { c.render = r }
}

func WithArtifactRemover(r ArtifactRemover) CoordinatorOption {
	return func(c *Coordinator) { c.remover = r }
}

func WithTelemetry(t *telemetry.Telemetry) CoordinatorOption {
	return func(c *Coordinator) { c.tel = t }
}

func WithConfig(cfg Config) CoordinatorOption {
	return func(c *Coordinator) { c.cfg = cfg }
}

func NewCoordinator(locker Locker, sink notifier.Sink, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		locker: locker,
		sink:   sink,
		render: progress.Render,
		clock:  clockwork.NewRealClock(),
		leases: make(map[string]*Lease),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.NotifyInterval <= 0 {
		c.cfg.NotifyInterval = notifier.DefaultInterval
	}

	if c.cfg.FinalDeliveryTimeout <= 0 {
		c.cfg.FinalDeliveryTimeout = DefaultFinalDeliveryTimeout
	}

	if c.cfg.LockRenewInterval <= 0 {
		c.cfg.LockRenewInterval = DefaultLockRenewInterval
	}

	return c
}

// Lease is the proof that a user's lock is held. Release is safe to call more
// than once and should always be deferred right after Acquire.
type Lease struct {
	userID string
	token  string
	c      *Coordinator

	stopRenew chan struct{}
	renewDone chan struct{}

	once      sync.Once
	released  atomic.Bool
	cancelled atomic.Bool

	mu      sync.Mutex
	current *Session
}

func (l *Lease) UserID() string {
	return l.userID
}

// Token identifies this acquisition of the user's lock.
func (l *Lease) Token() string {
	return l.token
}

// Cancelled reports whether a cancellation was requested for this lease.
func (l *Lease) Cancelled() bool {
	return l.cancelled.Load()
}

// Release frees the user lock and drops the last session view. It uses its
// own context so it still works when the caller's context is already done.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.released.Store(true)

		close(l.stopRenew)
		<-l.renewDone

		l.c.mu.Lock()
		if l.c.leases[l.userID] == l {
			delete(l.c.leases, l.userID)
		}
		l.c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := l.c.locker.Release(ctx, l.userID, l.token); err != nil {
			slog.Default().Error("failed to release user lock", "user_id", l.userID, "err", err)
		}
	})
}

// keepAlive extends the lock until Release. A lease whose lock was taken
// over by another holder cancels its running session.
func (l *Lease) keepAlive(interval time.Duration) {
	defer close(l.renewDone)

	ticker := l.c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopRenew:
			return
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			ok, err := l.c.locker.Renew(ctx, l.userID, l.token)
			cancel()

			switch {
			case err != nil:
				slog.Default().Warn("failed to renew user lock", "user_id", l.userID, "err", err)
			case !ok:
				slog.Default().Error("user lock lost to another holder", "user_id", l.userID)
				l.cancel()

				return
			}
		}
	}
}

func (l *Lease) cancel() {
	l.cancelled.Store(true)

	if s := l.session(); s != nil {
		s.mb.wake()
	}
}

func (l *Lease) session() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.current
}

func (l *Lease) setSession(s *Session) {
	l.mu.Lock()
	l.current = s
	l.mu.Unlock()
}

// Acquire takes the user's lock. A user that already has an active transfer
// gets a *ConcurrencyViolationError.
func (c *Coordinator) Acquire(ctx context.Context, userID string) (*Lease, error) {
	token := uuid.NewString()

	ok, err := c.locker.TryAcquire(ctx, userID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire user lock: %w", err)
	}

	if !ok {
		c.tel.RecordLockRejection(ctx)

		logctx.LoggerFromContext(ctx).InfoContext(ctx, "rejected transfer, user is busy", "user_id", userID)

		return nil, &ConcurrencyViolationError{UserID: userID}
	}

	lease := &Lease{
		userID:    userID,
		token:     token,
		c:         c,
		stopRenew: make(chan struct{}),
		renewDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.leases[userID] = lease
	c.mu.Unlock()

	go lease.keepAlive(c.cfg.LockRenewInterval)

	return lease, nil
}

// Transfer acquires the user's lock, runs one session and releases the lock.
func (c *Coordinator) Transfer(ctx context.Context, userID string, req Request, fn TransportFunc) (*Result, error) {
	lease, err := c.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	return c.Run(ctx, lease, req, fn)
}

// Cancel asks the user's running transfer to stop. The request is observed at
// the next progress sample; in-flight transport calls finish first.
func (c *Coordinator) Cancel(userID string) bool {
	c.mu.Lock()
	lease, ok := c.leases[userID]
	c.mu.Unlock()

	if !ok {
		return false
	}

	lease.cancel()

	return true
}

// Active returns the session of a user that holds the lock. Between
// sessions of one lease it keeps returning the last one.
func (c *Coordinator) Active(userID string) (SessionView, bool) {
	c.mu.Lock()
	lease, ok := c.leases[userID]
	c.mu.Unlock()

	if !ok {
		return SessionView{}, false
	}

	s := lease.session()
	if s == nil {
		return SessionView{}, false
	}

	return s.View(), true
}

// ActiveSessions lists the current session of every held lease.
func (c *Coordinator) ActiveSessions() []SessionView {
	c.mu.Lock()
	leases := make([]*Lease, 0, len(c.leases))
	for _, l := range c.leases {
		leases = append(leases, l)
	}
	c.mu.Unlock()

	views := make([]SessionView, 0, len(leases))

	for _, l := range leases {
		if s := l.session(); s != nil {
			views = append(views, s.View())
		}
	}

	return views
}

// Run executes one session under an acquired lease. It returns once the
// session reached a terminal status; the final snapshot of a completed
// session has been handed to the sink by then.
func (c *Coordinator) Run(ctx context.Context, lease *Lease, req Request, fn TransportFunc) (*Result, error) {
	if lease == nil || lease.released.Load() {
		return nil, ErrLeaseReleased
	}

	id := uuid.NewString()

	logger := logctx.LoggerFromContext(ctx).With(
		"user_id", lease.userID,
		"session_id", id,
		"direction", req.Direction.String(),
	)
	ctx = logctx.WithLogger(ctx, logger)

	opts := []progress.Option{progress.WithSampleInterval(c.cfg.SampleInterval)}
	if c.cfg.WindowSize > 0 {
		opts = append(opts, progress.WithWindowSize(c.cfg.WindowSize))
	}

	s := newSession(sessionConfig{
		id:        id,
		userID:    lease.userID,
		request:   req,
		sink:      c.sink,
		render:    c.render,
		clock:     c.clock,
		interval:  c.cfg.NotifyInterval,
		trackOpts: opts,
		tel:       c.tel,
		logger:    logger,
	})

	lease.setSession(s)

	defer func() {
		if closer, ok := c.sink.(notifier.Closer); ok {
			closer.CloseSession(id)
		}
	}()

	start := c.clock.Now()

	if lease.Cancelled() {
		s.transition(StatusCancelled)
		c.removeArtifact(ctx, req.Artifact)

		return c.result(s, start), ErrCancelled
	}

	s.transition(StatusActive)

	logger.InfoContext(ctx, "transfer started", "total_bytes", req.TotalBytes, "file_name", req.Label.FileName)

	c.tel.IncrementActiveTransfers(ctx)
	defer c.tel.DecrementActiveTransfers(ctx)

	err := c.tel.InstrumentTransfer(ctx, req.Direction.String(), func(ctx context.Context) error {
		return c.drive(ctx, lease, s, req, fn)
	})

	res := c.result(s, start)
	c.tel.RecordTransfer(ctx, req.Direction.String(), res.Status.String(), res.Duration, res.Snapshot.CurrentBytes)

	logger.InfoContext(ctx, "transfer finished",
		"status", res.Status.String(),
		"bytes", res.Snapshot.CurrentBytes,
		"duration", res.Duration.String(),
		"emitted", res.Stats.Emitted,
		"suppressed", res.Stats.Suppressed,
		"rate_limited", res.Stats.RateLimited,
		"sink_errors", res.Stats.SinkErrors,
	)

	return res, err
}

func (c *Coordinator) result(s *Session, start time.Time) *Result {
	view := s.View()

	return &Result{
		SessionID: s.id,
		Status:    view.Status,
		Snapshot:  view.Snapshot,
		Stats:     s.stats,
		Duration:  c.clock.Now().Sub(start),
	}
}

// drive starts the transport and consumes its samples until it returns, then
// settles the terminal status.
func (c *Coordinator) drive(ctx context.Context, lease *Lease, s *Session, req Request, fn TransportFunc) (err error) {
	logger := logctx.LoggerFromContext(ctx)

	tctx, cancelTransport := context.WithCancel(ctx)
	defer cancelTransport()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("transfer session panic", "panic", r, "stack", string(debug.Stack()))

			s.transition(StatusFailed)
			c.removeArtifact(ctx, req.Artifact)

			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()

	done := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: string(debug.Stack())}
			}
		}()

		done <- fn(tctx, func(current, total int64) {
			s.mb.put(sample{current: current, total: total, at: c.clock.Now()})
		})
	}()

	cancelled, terr := c.loop(ctx, lease, s, done, cancelTransport)

	var pe *PanicError

	switch {
	case asPanic(terr, &pe):
		logger.Error("transport panic", "panic", pe.Value, "stack", pe.Stack)

		s.transition(StatusFailed)
		c.removeArtifact(ctx, req.Artifact)

		return pe
	case cancelled || (terr != nil && ctx.Err() != nil):
		s.transition(StatusCancelled)
		c.removeArtifact(ctx, req.Artifact)

		return ErrCancelled
	case terr != nil:
		logger.Error("transport failed", "err", terr)

		s.transition(StatusFailed)
		c.removeArtifact(ctx, req.Artifact)

		return &TransportError{Operation: req.Direction.String(), Direction: req.Direction, Err: terr}
	}

	c.finish(ctx, s)
	s.transition(StatusCompleted)

	return nil
}

// loop is the single consumer of a session's samples.
func (c *Coordinator) loop(ctx context.Context, lease *Lease, s *Session, done <-chan error, cancelTransport func()) (bool, error) {
	var (
		backoffC  <-chan time.Time
		cancelled bool
	)

	for {
		select {
		case <-s.mb.ready:
			if !cancelled && lease.Cancelled() {
				cancelled = true

				s.logger.Info("cancellation requested, stopping transport")
				cancelTransport()
			}

			smp, ok := s.mb.take()
			if ok && !cancelled {
				s.handleSample(ctx, smp)
			}
		case <-backoffC:
			backoffC = nil

			s.resume(ctx)
		case err := <-done:
			cancelled = cancelled || lease.Cancelled()

			if smp, ok := s.mb.take(); ok && !cancelled && err == nil {
				s.handleSample(ctx, smp)
			}

			return cancelled, err
		}

		if backoffC == nil {
			if d := s.backoffRemaining(); d > 0 {
				backoffC = c.clock.After(d)
			}
		}
	}
}

// finish delivers the final snapshot, waiting out an active backoff for at
// most FinalDeliveryTimeout.
func (c *Coordinator) finish(ctx context.Context, s *Session) {
	s.complete(ctx)

	if s.delivered() {
		return
	}

	timeout := c.clock.After(c.cfg.FinalDeliveryTimeout)

	for !s.delivered() {
		d := s.backoffRemaining()
		if d == 0 {
			s.resume(ctx)

			continue
		}

		select {
		case <-c.clock.After(d):
		case <-timeout:
			s.logger.Warn("gave up delivering final status, sink still rate limited")
			s.throttle.Drop()

			return
		case <-ctx.Done():
			s.throttle.Drop()

			return
		}
	}
}

func (c *Coordinator) removeArtifact(ctx context.Context, path string) {
	if path == "" || c.remover == nil {
		return
	}

	// the session context may be cancelled already
	if err := c.remover.RemoveArtifact(context.WithoutCancel(ctx), path); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to remove partial artifact", "path", path, "err", err)
	}
}

func asPanic(err error, target **PanicError) bool {
	pe, ok := err.(*PanicError)
	if ok {
		*target = pe
	}

	return ok
}
