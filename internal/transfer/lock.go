package transfer

import (
	"context"
	"sync"
)

// Locker enforces at most one active transfer per user. Each acquisition
// carries its own token; Renew and Release only act on the lock while that
// token still owns it. TryAcquire must be an atomic check-and-set.
type Locker interface {
	TryAcquire(ctx context.Context, userID, token string) (bool, error)
	Renew(ctx context.Context, userID, token string) (bool, error)
	Release(ctx context.Context, userID, token string) error
}

// MemoryLocker is the in-process Locker. Entries are created on first use and
// reset to free on release; they are never removed.
type MemoryLocker struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{owners: make(map[string]string)}
}

func (l *MemoryLocker) TryAcquire(_ context.Context, userID, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owners[userID] != "" {
		return false, nil
	}

	l.owners[userID] = token

	return true, nil
}

// Renew reports whether token still owns the lock. In-process locks never
// expire, so there is nothing to extend.
func (l *MemoryLocker) Renew(_ context.Context, userID, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.owners[userID] == token, nil
}

func (l *MemoryLocker) Release(_ context.Context, userID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owners[userID] == token {
		l.owners[userID] = ""
	}

	return nil
}

// Busy reports whether userID currently holds the lock.
func (l *MemoryLocker) Busy(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.owners[userID] != ""
}
