// Package booking implements the seat inventory and locking engine: the
// availability calculator, the lock manager that grants, confirms and
// releases seat holds, and the sweeper that persists lapsed holds.
//
// Failures are reported as the sentinel errors below, usually wrapped
// with context.  Callers should compare with errors.Is.
package booking

import "errors"

var (
	// ErrNotFound is returned for an unknown departure or hold.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientSeats rejects a hold larger than the live
	// availability of the departure.
	ErrInsufficientSeats = errors.New("insufficient seats")

	// ErrHoldNotActive is returned when confirming a hold that was
	// released or has expired.  The caller must start over.
	ErrHoldNotActive = errors.New("hold not active")

	// ErrConflict signals a duplicate identifier on insert.
	ErrConflict = errors.New("conflict")

	// ErrStaleState is returned by a compare-and-swap transition whose
	// expected state no longer matches: another actor won the race.
	ErrStaleState = errors.New("stale state")

	// ErrLockTimeout is returned when the departure scope could not be
	// acquired within the configured wait.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrCapacityExceeded means confirmed seats would exceed capacity.
	// Correct hold accounting makes this unreachable; seeing it is a bug.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidTransition is returned for a transition that is not a
	// forward edge out of pending.
	ErrInvalidTransition = errors.New("invalid state transition")

	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidOwner    = errors.New("owner reference is required")
)

// Retryable reports whether err belongs to the "try again" class: a lost
// race or lock contention rather than a business rejection or a bug.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStaleState) || errors.Is(err, ErrLockTimeout)
}
