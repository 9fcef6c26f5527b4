package transfer

import (
	"context"

	"github.com/italolelis/transfer_monitor/internal/telemetry"
)

// InstrumentedLocker wraps a Locker with telemetry.
type InstrumentedLocker struct {
	locker    Locker
	telemetry *telemetry.Telemetry
	backend   string
}

func NewInstrumentedLocker(locker Locker, tel *telemetry.Telemetry, backend string) *InstrumentedLocker {
	return &InstrumentedLocker{locker: locker, telemetry: tel, backend: backend}
}

func (l *InstrumentedLocker) TryAcquire(ctx context.Context, userID, token string) (bool, error) {
	var ok bool

	err := l.telemetry.InstrumentOperation(ctx, "lock_acquire", "lock_"+l.backend, func(ctx context.Context) error {
		var err error
		ok, err = l.locker.TryAcquire(ctx, userID, token)

		return err
	})

	return ok, err
}

func (l *InstrumentedLocker) Renew(ctx context.Context, userID, token string) (bool, error) {
	var ok bool

	err := l.telemetry.InstrumentOperation(ctx, "lock_renew", "lock_"+l.backend, func(ctx context.Context) error {
		var err error
		ok, err = l.locker.Renew(ctx, userID, token)

		return err
	})

	return ok, err
}

func (l *InstrumentedLocker) Release(ctx context.Context, userID, token string) error {
	return l.telemetry.InstrumentOperation(ctx, "lock_release", "lock_"+l.backend, func(ctx context.Context) error {
		return l.locker.Release(ctx, userID, token)
	})
}
