package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/italolelis/transfer_monitor/internal/notifier"
	"github.com/italolelis/transfer_monitor/internal/progress"
	"github.com/jonboulle/clockwork"
)

const mib = 1 << 20

var testStart = time.Date(2025, 9, 29, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type emission struct {
	sessionID string
	text      string
	at        time.Time
}

// recordingSink records every Emit call. errs maps the 1-based call number to
// the error returned for it.
type recordingSink struct {
	clock clockwork.Clock

	mu     sync.Mutex
	calls  []emission
	errs   map[int]error
	closed []string
}

func newRecordingSink(clk clockwork.Clock) *recordingSink {
	return &recordingSink{clock: clk, errs: make(map[int]error)}
}

func (r *recordingSink) Emit(_ context.Context, sessionID string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, emission{sessionID: sessionID, text: text, at: r.clock.Now()})

	return r.errs[len(r.calls)]
}

func (r *recordingSink) CloseSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = append(r.closed, sessionID)
}

func (r *recordingSink) Calls() []emission {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]emission(nil), r.calls...)
}

func (r *recordingSink) Closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.closed...)
}

// snapshotRenderer renders only what the tests assert on.
func snapshotRenderer(_ progress.Label, s progress.Snapshot) string {
	if s.Final {
		return "final " + progress.FormatBytes(s.CurrentBytes)
	}

	return progress.FormatBytes(s.CurrentBytes)
}

type recordingRemover struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRemover) RemoveArtifact(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.paths = append(r.paths, path)

	return nil
}

func (r *recordingRemover) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.paths...)
}

var errNetwork = errors.New("connection reset by peer")

func rateLimited(d time.Duration) error {
	return &notifier.RateLimitedError{Sink: "test", RetryAfter: d}
}
