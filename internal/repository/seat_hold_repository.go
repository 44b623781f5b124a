package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// SeatHoldRepo provides data access to the seat_holds table: the lock
// ledger half of the store.  Every state change is a conditional UPDATE
// on the expected state, and every time comparison uses the caller's now
// (UTC) rather than the database clock, so the engine's clock is the only
// source of time.
type SeatHoldRepo struct {
	db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

const holdColumns = `id, departure_id, quantity, owner_ref, state, created_at, expires_at, updated_at`

// Insert persists a new pending hold.  A duplicate id yields
// booking.ErrConflict.
func (r *SeatHoldRepo) Insert(ctx context.Context, q querier, h model.SeatHold) error {
	if h.Quantity <= 0 {
		return booking.ErrInvalidQuantity
	}
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = h.CreatedAt
	}
	const ins = `INSERT INTO seat_holds (` + holdColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, ins,
		h.ID, h.DepartureID, h.Quantity, h.OwnerRef, string(model.HoldPending),
		h.CreatedAt.UTC(), h.ExpiresAt.UTC(), h.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert hold %s: %w", h.ID, mapError(err))
	}
	return nil
}

// Get loads a hold by id.
func (r *SeatHoldRepo) Get(ctx context.Context, q querier, id string) (model.SeatHold, error) {
	row := q.QueryRowContext(ctx, `SELECT `+holdColumns+` FROM seat_holds WHERE id = ?`, id)
	h, err := scanHold(row)
	if err != nil {
		return model.SeatHold{}, fmt.Errorf("hold %s: %w", id, mapError(err))
	}
	return h, nil
}

// ListActive returns pending holds of the departure with expires_at > now,
// oldest first.  Served by idx_holds_departure_state_expiry.
func (r *SeatHoldRepo) ListActive(ctx context.Context, q querier, departureID string, now time.Time) ([]model.SeatHold, error) {
	const sel = `SELECT ` + holdColumns + ` FROM seat_holds
                 WHERE departure_id = ? AND state = 'pending' AND expires_at > ?
                 ORDER BY created_at, id`
	return r.list(ctx, q, sel, departureID, now.UTC())
}

// ListExpired returns pending holds of the departure whose expires_at has
// passed.  These are what the sweep marks expired.
func (r *SeatHoldRepo) ListExpired(ctx context.Context, q querier, departureID string, now time.Time) ([]model.SeatHold, error) {
	const sel = `SELECT ` + holdColumns + ` FROM seat_holds
                 WHERE departure_id = ? AND state = 'pending' AND expires_at <= ?
                 ORDER BY expires_at, id`
	return r.list(ctx, q, sel, departureID, now.UTC())
}

// DeparturesWithExpired lists the departures that have sweepable holds.
func (r *SeatHoldRepo) DeparturesWithExpired(ctx context.Context, now time.Time) ([]string, error) {
	const sel = `SELECT DISTINCT departure_id FROM seat_holds
                 WHERE state = 'pending' AND expires_at <= ?
                 ORDER BY departure_id`
	rows, err := r.db.QueryContext(ctx, sel, now.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Transition sets the hold's state to `to` only if it is currently
// `from`.  A hold in another state yields booking.ErrStaleState; an
// unknown id yields booking.ErrNotFound.
func (r *SeatHoldRepo) Transition(ctx context.Context, q querier, id string, from, to model.HoldState, now time.Time) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, booking.ErrInvalidTransition)
	}
	const upd = `UPDATE seat_holds SET state = ?, updated_at = ? WHERE id = ? AND state = ?`
	res, err := q.ExecContext(ctx, upd, string(to), now.UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("transition hold %s: %w", id, mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var state string
	if err := q.QueryRowContext(ctx, `SELECT state FROM seat_holds WHERE id = ?`, id).Scan(&state); err != nil {
		return fmt.Errorf("hold %s: %w", id, mapError(err))
	}
	return fmt.Errorf("hold %s is %s, want %s: %w", id, state, from, booking.ErrStaleState)
}

func (r *SeatHoldRepo) list(ctx context.Context, q querier, query string, args ...any) ([]model.SeatHold, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var holds []model.SeatHold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHold(s scanner) (model.SeatHold, error) {
	var h model.SeatHold
	var state string
	if err := s.Scan(&h.ID, &h.DepartureID, &h.Quantity, &h.OwnerRef, &state, &h.CreatedAt, &h.ExpiresAt, &h.UpdatedAt); err != nil {
		return model.SeatHold{}, err
	}
	h.State = model.HoldState(state)
	if !h.State.Valid() {
		return model.SeatHold{}, fmt.Errorf("hold %s: unknown state %q", h.ID, state)
	}
	return h, nil
}
