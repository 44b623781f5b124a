package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// Store implements booking.Store on MySQL.
type Store struct {
	db         *sql.DB
	Departures *DepartureRepo
	Holds      *SeatHoldRepo
	lockWait   time.Duration
}

var (
	_ booking.Store             = (*Store)(nil)
	_ booking.DepartureRegistry = (*Store)(nil)
)

// NewStore returns a Store over db.  lockWait bounds how long a departure
// scope waits for the row lock; zero leaves it to the server default.
func NewStore(db *sql.DB, lockWait time.Duration) *Store {
	return &Store{
		db:         db,
		Departures: NewDepartureRepo(db),
		Holds:      NewSeatHoldRepo(db),
		lockWait:   lockWait,
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithinDeparture runs fn in a transaction that holds the departure's row
// lock.  Every scoped write commits with the transaction or not at all.
func (s *Store) WithinDeparture(ctx context.Context, departureID string, fn func(tx booking.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	lockCtx := ctx
	if s.lockWait > 0 {
		// innodb_lock_wait_timeout is whole seconds; the context deadline
		// enforces the exact budget.
		secs := int((s.lockWait + time.Second - 1) / time.Second)
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
			return mapError(err)
		}
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockWait)
		defer cancel()
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.Departures.LockTx(lockCtx, tx, departureID); err != nil {
		return err
	}
	if err := fn(&storeTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(err)
	}
	committed = true
	return nil
}

func (s *Store) CreateDeparture(ctx context.Context, d model.Departure) error {
	return s.Departures.Create(ctx, d)
}

func (s *Store) DeparturesWithExpired(ctx context.Context, now time.Time) ([]string, error) {
	return s.Holds.DeparturesWithExpired(ctx, now)
}

func (s *Store) GetCapacity(ctx context.Context, departureID string) (int, int, error) {
	return s.Departures.GetCapacity(ctx, s.db, departureID)
}

func (s *Store) IncrementConfirmed(ctx context.Context, departureID string, quantity int) error {
	return s.Departures.IncrementConfirmed(ctx, s.db, departureID, quantity)
}

func (s *Store) Insert(ctx context.Context, hold model.SeatHold) error {
	return s.Holds.Insert(ctx, s.db, hold)
}

func (s *Store) Get(ctx context.Context, holdID string) (model.SeatHold, error) {
	return s.Holds.Get(ctx, s.db, holdID)
}

func (s *Store) ListActive(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return s.Holds.ListActive(ctx, s.db, departureID, now)
}

func (s *Store) ListExpired(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return s.Holds.ListExpired(ctx, s.db, departureID, now)
}

func (s *Store) Transition(ctx context.Context, holdID string, from, to model.HoldState, now time.Time) error {
	return s.Holds.Transition(ctx, s.db, holdID, from, to, now)
}

// storeTx routes the booking.Tx methods through the scope's transaction.
type storeTx struct {
	s  *Store
	tx *sql.Tx
}

func (t *storeTx) GetCapacity(ctx context.Context, departureID string) (int, int, error) {
	return t.s.Departures.GetCapacity(ctx, t.tx, departureID)
}

func (t *storeTx) IncrementConfirmed(ctx context.Context, departureID string, quantity int) error {
	return t.s.Departures.IncrementConfirmed(ctx, t.tx, departureID, quantity)
}

func (t *storeTx) Insert(ctx context.Context, hold model.SeatHold) error {
	return t.s.Holds.Insert(ctx, t.tx, hold)
}

func (t *storeTx) Get(ctx context.Context, holdID string) (model.SeatHold, error) {
	return t.s.Holds.Get(ctx, t.tx, holdID)
}

func (t *storeTx) ListActive(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return t.s.Holds.ListActive(ctx, t.tx, departureID, now)
}

func (t *storeTx) ListExpired(ctx context.Context, departureID string, now time.Time) ([]model.SeatHold, error) {
	return t.s.Holds.ListExpired(ctx, t.tx, departureID, now)
}

func (t *storeTx) Transition(ctx context.Context, holdID string, from, to model.HoldState, now time.Time) error {
	return t.s.Holds.Transition(ctx, t.tx, holdID, from, to, now)
}
