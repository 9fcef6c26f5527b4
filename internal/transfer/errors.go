package transfer

import (
	"errors"
	"fmt"

	"github.com/italolelis/transfer_monitor/internal/progress"
)

var (
	// ErrCancelled is returned by Run when the session was cancelled by the
	// user or by its context.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrLeaseReleased is returned when a released lease is reused.
	ErrLeaseReleased = errors.New("lease already released")
)

// ConcurrencyViolationError is returned when a user asks for a second transfer
// while one is still running. No session is created.
type ConcurrencyViolationError struct {
	UserID string
}

func (e *ConcurrencyViolationError) Error() string {
	return fmt.Sprintf("user %s already has an active transfer", e.UserID)
}

// TransportError wraps a failure of the byte transport itself, such as a
// network fault or a remote rejection.
type TransportError struct {
	Operation string             // The transport operation that failed (e.g. "download", "upload")
	Direction progress.Direction // Direction of the failed session
	Err       error              // Underlying error, if any
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Operation)
	}

	return fmt.Sprintf("%s failed: %s", e.Operation, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PanicError reports a panic recovered inside a session.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("transfer panicked: %v", e.Value)
}

// IsBusy reports whether err means the user already has an active transfer.
func IsBusy(err error) bool {
	var cv *ConcurrencyViolationError

	return errors.As(err, &cv)
}
