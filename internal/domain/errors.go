package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidQuery indicates an empty or malformed search input.
	// Caller error; not retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotFound indicates a missing entity in the store.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable indicates a transient store failure. Callers
	// retry with backoff; the engine never swallows it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrVersionMismatch indicates a conditional write lost a race.
	ErrVersionMismatch = errors.New("version mismatch")
)

// ClaimConflictError is returned when a live claim is held by another
// session. It carries the holder and remaining TTL so the caller can
// decide to wait, queue, or abort.
type ClaimConflictError struct {
	RepoID       string
	Path         string
	HolderID     string
	RemainingTTL time.Duration
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("claim conflict on %s/%s: held by session %s for another %s",
		e.RepoID, e.Path, e.HolderID, e.RemainingTTL.Round(time.Second))
}

// IsClaimConflict reports whether err is a ClaimConflictError.
func IsClaimConflict(err error) bool {
	var cce *ClaimConflictError
	return errors.As(err, &cce)
}

// StaleRunTransitionError is returned when a run operation is attempted
// from an incompatible state. It is surfaced to the caller, never
// silently coerced.
type StaleRunTransitionError struct {
	RunID     string
	Operation string
	Status    RunStatus
}

func (e *StaleRunTransitionError) Error() string {
	return fmt.Sprintf("run %s: cannot %s from status %q", e.RunID, e.Operation, e.Status)
}

// IsStaleRunTransition reports whether err is a StaleRunTransitionError.
func IsStaleRunTransition(err error) bool {
	var srt *StaleRunTransitionError
	return errors.As(err, &srt)
}
