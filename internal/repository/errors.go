// Package repository implements the booking Store on MySQL.  The
// departure scope is a row lock on the departure (SELECT ... FOR UPDATE)
// held by a READ COMMITTED transaction, so it also serializes writers
// running on other nodes.  Driver errors are translated into the booking
// sentinel errors so that handlers never see MySQL specifics.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
)

// MySQL server error numbers the store reacts to.
const (
	erDupEntry          = 1062
	erLockWaitTimeout   = 1205
	erLockDeadlock      = 1213
	erLockNowaitTimeout = 3572
)

// mapError translates a driver error into a booking sentinel where one
// applies and returns err unchanged otherwise.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erDupEntry:
			return errors.Join(booking.ErrConflict, err)
		case erLockWaitTimeout, erLockNowaitTimeout:
			return errors.Join(booking.ErrLockTimeout, err)
		case erLockDeadlock:
			// InnoDB rolled the transaction back; the caller may retry.
			return errors.Join(booking.ErrStaleState, err)
		}
	}
	return err
}

// mapLockError is mapError for the statement acquiring the departure
// lock: running out of the wait budget is a lock timeout, not a failure.
func mapLockError(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return errors.Join(booking.ErrLockTimeout, err)
	}
	return mapError(err)
}
