package booking

import (
	"context"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// InventoryStore holds each departure's capacity and confirmed count.
type InventoryStore interface {
	// GetCapacity returns ErrNotFound for an unknown departure.
	GetCapacity(ctx context.Context, departureID string) (capacity, confirmed int, err error)
	// IncrementConfirmed atomically adds quantity to the confirmed count
	// and fails with ErrCapacityExceeded rather than oversell.
	IncrementConfirmed(ctx context.Context, departureID string, quantity int) error
}

// LockLedger records seat holds.  State changes only go through
// Transition, which is a compare-and-swap on the persisted state.
type LockLedger interface {
	// Insert persists a new pending hold; ErrConflict on a duplicate ID.
	Insert(ctx context.Context, hold model.SeatHold) error
	Get(ctx context.Context, holdID string) (model.SeatHold, error)
	// ListActive returns pending holds with expires_at > now, oldest first.
	ListActive(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error)
	// ListExpired returns pending holds with expires_at <= now.
	ListExpired(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error)
	// Transition moves the hold from -> to.  It fails with ErrStaleState
	// when the persisted state is not from.
	Transition(ctx context.Context, holdID string, from, to model.HoldState, now time.Time) error
}

// Tx is the view of the inventory and ledger inside a departure scope.
type Tx interface {
	InventoryStore
	LockLedger
}

// Store is the persistence behind the Manager.  Its own Tx methods run
// as single statements outside any scope; WithinDeparture serializes
// units of work per departure.
type Store interface {
	Tx

	// WithinDeparture runs fn with exclusive access to the departure's
	// inventory row and pending holds.  Writes made through tx commit
	// together when fn returns nil and are discarded otherwise.  It fails
	// with ErrLockTimeout when the scope is not granted in time and with
	// ErrNotFound when the departure does not exist.
	WithinDeparture(ctx context.Context, departureID string, fn func(tx Tx) error) error

	// DeparturesWithExpired lists departures holding pending holds whose
	// expires_at <= now.
	DeparturesWithExpired(ctx context.Context, now time.Time) ([]string, error)
}

// DepartureRegistry is the entry point of the scheduling collaborator.
type DepartureRegistry interface {
	CreateDeparture(ctx context.Context, d model.Departure) error
}

// MarkExpired transitions a pending hold to expired.
func MarkExpired(ctx context.Context, ledger LockLedger, holdID string, now time.Time) error {
	return ledger.Transition(ctx, holdID, model.HoldPending, model.HoldExpired, now)
}
