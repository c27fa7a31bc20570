package repository

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every store-backed component. Handlers map these
// to HTTP statuses and must never let a raw driver error reach a caller.
var (
	// ErrNotFound means the identifier resolved to no row.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition means a state transition was attempted outside its
	// guard. Recoverable; the caller should re-fetch current state.
	ErrPrecondition = errors.New("precondition failed")

	// ErrStoreUnavailable means the backing store could not be reached.
	// Retryable with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout means a collaborator call exceeded its bound. The caller
	// must not assume the operation completed.
	ErrTimeout = errors.New("operation timed out")

	// ErrValidation means the request carried a missing or unrecognized
	// field. User-correctable.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means a write supplied a stale row version.
	ErrConflict = errors.New("version conflict")
)

// ConflictError carries the versions involved in a rejected stale write so
// the caller can retry against fresh state.
type ConflictError struct {
	Table           string
	ID              string
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (expected %d, current %d)", e.Table, e.ID, e.ExpectedVersion, e.CurrentVersion)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
