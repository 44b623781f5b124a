package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// DepartureRepo provides access to the departures table: the inventory
// half of the store.  Capacity never changes after insert; only
// confirmations move confirmed_count.
type DepartureRepo struct {
	db *sql.DB
}

// NewDepartureRepo returns a new DepartureRepo bound to the provided database.
func NewDepartureRepo(db *sql.DB) *DepartureRepo { return &DepartureRepo{db: db} }

// Create inserts a departure with zero confirmed seats.  A duplicate id
// yields booking.ErrConflict.
func (r *DepartureRepo) Create(ctx context.Context, d model.Departure) error {
	if d.Capacity <= 0 {
		return fmt.Errorf("capacity %d: %w", d.Capacity, booking.ErrInvalidQuantity)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	const q = `INSERT INTO departures (id, capacity, confirmed_count, created_at) VALUES (?, ?, 0, ?)`
	if _, err := r.db.ExecContext(ctx, q, d.ID, d.Capacity, d.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("departure %s: %w", d.ID, mapError(err))
	}
	return nil
}

// GetByID loads a departure row.
func (r *DepartureRepo) GetByID(ctx context.Context, q querier, id string) (model.Departure, error) {
	const sel = `SELECT id, capacity, confirmed_count, created_at FROM departures WHERE id = ?`
	var d model.Departure
	if err := q.QueryRowContext(ctx, sel, id).Scan(&d.ID, &d.Capacity, &d.Confirmed, &d.CreatedAt); err != nil {
		return model.Departure{}, fmt.Errorf("departure %s: %w", id, mapError(err))
	}
	return d, nil
}

// GetCapacity returns capacity and confirmed count of a departure.
func (r *DepartureRepo) GetCapacity(ctx context.Context, q querier, id string) (int, int, error) {
	const sel = `SELECT capacity, confirmed_count FROM departures WHERE id = ?`
	var capacity, confirmed int
	if err := q.QueryRowContext(ctx, sel, id).Scan(&capacity, &confirmed); err != nil {
		return 0, 0, fmt.Errorf("departure %s: %w", id, mapError(err))
	}
	return capacity, confirmed, nil
}

// LockTx takes the row lock that defines the departure scope.  It blocks
// while another transaction holds it, up to innodb_lock_wait_timeout or
// ctx's deadline.
func (r *DepartureRepo) LockTx(ctx context.Context, tx *sql.Tx, id string) error {
	var got string
	err := tx.QueryRowContext(ctx, `SELECT id FROM departures WHERE id = ? FOR UPDATE`, id).Scan(&got)
	if err != nil {
		return fmt.Errorf("lock departure %s: %w", id, mapLockError(ctx, err))
	}
	return nil
}

// IncrementConfirmed adds quantity to confirmed_count in one conditional
// UPDATE.  When no row matches, a follow-up read tells a missing
// departure apart from an update that would oversell.
func (r *DepartureRepo) IncrementConfirmed(ctx context.Context, q querier, id string, quantity int) error {
	if quantity <= 0 {
		return booking.ErrInvalidQuantity
	}
	const upd = `UPDATE departures SET confirmed_count = confirmed_count + ?
                 WHERE id = ? AND confirmed_count + ? <= capacity`
	res, err := q.ExecContext(ctx, upd, quantity, id, quantity)
	if err != nil {
		return fmt.Errorf("departure %s: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	capacity, confirmed, err := r.GetCapacity(ctx, q, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("departure %s: %d confirmed + %d > capacity %d: %w",
		id, confirmed, quantity, capacity, booking.ErrCapacityExceeded)
}
