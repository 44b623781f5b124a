package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var holdCols = []string{"id", "departure_id", "quantity", "owner_ref", "state", "created_at", "expires_at", "updated_at"}

func TestMapError(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, booking.ErrNotFound},
		{"duplicate", &mysql.MySQLError{Number: 1062}, booking.ErrConflict},
		{"lock wait", &mysql.MySQLError{Number: 1205}, booking.ErrLockTimeout},
		{"nowait", &mysql.MySQLError{Number: 3572}, booking.ErrLockTimeout},
		{"deadlock", &mysql.MySQLError{Number: 1213}, booking.ErrStaleState},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestMapLockError_Deadline(t *testing.T) {
	err := mapLockError(context.Background(), context.DeadlineExceeded)
	assert.ErrorIs(t, err, booking.ErrLockTimeout)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err = mapLockError(canceled, context.Canceled)
	assert.NotErrorIs(t, err, booking.ErrLockTimeout)
}

func TestDepartureRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	r := NewDepartureRepo(db)
	ctx := context.Background()

	mock.ExpectExec(q(`INSERT INTO departures (id, capacity, confirmed_count, created_at) VALUES (?, ?, 0, ?)`)).
		WithArgs("D1", 40, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Create(ctx, model.Departure{ID: "D1", Capacity: 40}))

	mock.ExpectExec(q(`INSERT INTO departures`)).
		WithArgs("D1", 40, sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.ErrorIs(t, r.Create(ctx, model.Departure{ID: "D1", Capacity: 40}), booking.ErrConflict)

	assert.ErrorIs(t, r.Create(ctx, model.Departure{ID: "D2"}), booking.ErrInvalidQuantity)
}

func TestDepartureRepo_IncrementConfirmed(t *testing.T) {
	db, mock := newMock(t)
	r := NewDepartureRepo(db)
	ctx := context.Background()
	upd := q(`UPDATE departures SET confirmed_count = confirmed_count + ?`)
	sel := q(`SELECT capacity, confirmed_count FROM departures WHERE id = ?`)

	mock.ExpectExec(upd).WithArgs(3, "D", 3).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.IncrementConfirmed(ctx, db, "D", 3))

	mock.ExpectExec(upd).WithArgs(3, "D", 3).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs("D").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "confirmed_count"}).AddRow(10, 9))
	assert.ErrorIs(t, r.IncrementConfirmed(ctx, db, "D", 3), booking.ErrCapacityExceeded)

	mock.ExpectExec(upd).WithArgs(1, "X", 1).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs("X").WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, r.IncrementConfirmed(ctx, db, "X", 1), booking.ErrNotFound)
}

func TestSeatHoldRepo_Transition(t *testing.T) {
	db, mock := newMock(t)
	r := NewSeatHoldRepo(db)
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	upd := q(`UPDATE seat_holds SET state = ?, updated_at = ? WHERE id = ? AND state = ?`)
	sel := q(`SELECT state FROM seat_holds WHERE id = ?`)

	mock.ExpectExec(upd).WithArgs("confirmed", now, "h1", "pending").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.Transition(ctx, db, "h1", model.HoldPending, model.HoldConfirmed, now))

	mock.ExpectExec(upd).WithArgs("released", now, "h1", "pending").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs("h1").WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow("confirmed"))
	assert.ErrorIs(t, r.Transition(ctx, db, "h1", model.HoldPending, model.HoldReleased, now), booking.ErrStaleState)

	mock.ExpectExec(upd).WithArgs("expired", now, "nope", "pending").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, r.Transition(ctx, db, "nope", model.HoldPending, model.HoldExpired, now), booking.ErrNotFound)

	assert.ErrorIs(t, r.Transition(ctx, db, "h1", model.HoldExpired, model.HoldPending, now), booking.ErrInvalidTransition)
}

func TestSeatHoldRepo_ListActive(t *testing.T) {
	db, mock := newMock(t)
	r := NewSeatHoldRepo(db)
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(q(`WHERE departure_id = ? AND state = 'pending' AND expires_at > ?`)).
		WithArgs("D", now).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("h1", "D", 2, "agent-1", "pending", now.Add(-time.Minute), now.Add(9*time.Minute), now.Add(-time.Minute)).
			AddRow("h2", "D", 1, "agent-2", "pending", now, now.Add(10*time.Minute), now))

	holds, err := r.ListActive(context.Background(), db, "D", now)
	require.NoError(t, err)
	require.Len(t, holds, 2)
	assert.Equal(t, "h1", holds[0].ID)
	assert.Equal(t, model.HoldPending, holds[0].State)
	assert.Equal(t, 2, holds[0].Quantity)
	assert.Equal(t, "agent-2", holds[1].OwnerRef)
}

func TestSeatHoldRepo_GetRejectsUnknownState(t *testing.T) {
	db, mock := newMock(t)
	r := NewSeatHoldRepo(db)
	now := time.Now().UTC()
	mock.ExpectQuery(q(`FROM seat_holds WHERE id = ?`)).WithArgs("h").
		WillReturnRows(sqlmock.NewRows(holdCols).AddRow("h", "D", 1, "a", "bogus", now, now, now))

	_, err := r.Get(context.Background(), db, "h")
	assert.Error(t, err)
}

func TestSeatHoldRepo_InsertDuplicate(t *testing.T) {
	db, mock := newMock(t)
	r := NewSeatHoldRepo(db)
	now := time.Now().UTC()
	mock.ExpectExec(q(`INSERT INTO seat_holds`)).
		WithArgs("h", "D", 2, "a", "pending", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062})

	err := r.Insert(context.Background(), db, model.SeatHold{ID: "h", DepartureID: "D", Quantity: 2, OwnerRef: "a", CreatedAt: now, ExpiresAt: now})
	assert.ErrorIs(t, err, booking.ErrConflict)
}

func TestStore_WithinDepartureCommits(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db, 1500*time.Millisecond)
	ctx := context.Background()
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectExec(q(`SET SESSION innodb_lock_wait_timeout = 2`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT id FROM departures WHERE id = ? FOR UPDATE`)).WithArgs("D").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("D"))
	mock.ExpectQuery(q(`SELECT capacity, confirmed_count FROM departures WHERE id = ?`)).WithArgs("D").
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "confirmed_count"}).AddRow(10, 0))
	mock.ExpectExec(q(`INSERT INTO seat_holds`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithinDeparture(ctx, "D", func(tx booking.Tx) error {
		capacity, _, err := tx.GetCapacity(ctx, "D")
		require.NoError(t, err)
		assert.Equal(t, 10, capacity)
		return tx.Insert(ctx, model.SeatHold{ID: "h", DepartureID: "D", Quantity: 1, OwnerRef: "a", CreatedAt: now, ExpiresAt: now.Add(time.Minute)})
	})
	require.NoError(t, err)
}

func TestStore_WithinDepartureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db, 0)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(q(`FOR UPDATE`)).WithArgs("D").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("D"))
	mock.ExpectRollback()

	err := s.WithinDeparture(ctx, "D", func(booking.Tx) error { return booking.ErrInsufficientSeats })
	assert.ErrorIs(t, err, booking.ErrInsufficientSeats)
}

func TestStore_WithinDepartureLockTimeout(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`FOR UPDATE`)).WithArgs("D").
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	called := false
	err := s.WithinDeparture(context.Background(), "D", func(booking.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, booking.ErrLockTimeout)
	assert.False(t, called)
}

func TestStore_WithinUnknownDeparture(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`FOR UPDATE`)).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := s.WithinDeparture(context.Background(), "nope", func(booking.Tx) error { return nil })
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

// The manager runs unchanged on the MySQL store: a confirmation is the
// CAS transition plus the conditional increment in one transaction.
func TestStore_ManagerConfirm(t *testing.T) {
	db, mock := newMock(t)
	s := NewStore(db, 0)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Minute)
	expires := time.Now().UTC().Add(time.Hour)
	holdRow := func(state string) *sqlmock.Rows {
		return sqlmock.NewRows(holdCols).AddRow("h", "D", 2, "agent", state, created, expires, created)
	}

	mock.ExpectQuery(q(`FROM seat_holds WHERE id = ?`)).WithArgs("h").WillReturnRows(holdRow("pending"))
	mock.ExpectBegin()
	mock.ExpectQuery(q(`FOR UPDATE`)).WithArgs("D").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("D"))
	mock.ExpectQuery(q(`FROM seat_holds WHERE id = ?`)).WithArgs("h").WillReturnRows(holdRow("pending"))
	mock.ExpectExec(q(`UPDATE seat_holds SET state = ?`)).
		WithArgs("confirmed", sqlmock.AnyArg(), "h", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(`UPDATE departures SET confirmed_count`)).WithArgs(2, "D", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mgr := booking.NewManager(s, nil, nil, booking.Config{})
	res, err := mgr.ConfirmHold(ctx, "h")
	require.NoError(t, err)
	assert.False(t, res.AlreadyConfirmed)
	assert.Equal(t, model.HoldConfirmed, res.Hold.State)
}
