package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
)

func TestWriteError(t *testing.T) {
	e := echo.New()
	for _, tt := range []struct {
		err  error
		code int
		body string
	}{
		{booking.ErrNotFound, http.StatusNotFound, "not_found"},
		{booking.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{booking.ErrInvalidOwner, http.StatusBadRequest, "invalid_owner"},
		{fmt.Errorf("departure D: %w", booking.ErrInsufficientSeats), http.StatusConflict, "insufficient_seats"},
		{booking.ErrHoldNotActive, http.StatusGone, "hold_not_active"},
		{booking.ErrConflict, http.StatusConflict, "conflict"},
		{errors.Join(booking.ErrStaleState, errors.New("deadlock")), http.StatusConflict, "conflict"},
		{booking.ErrLockTimeout, http.StatusServiceUnavailable, "busy"},
		{booking.ErrCapacityExceeded, http.StatusInternalServerError, "internal error"},
		{booking.ErrInvalidTransition, http.StatusInternalServerError, "internal error"},
		{errors.New("driver: bad connection"), http.StatusInternalServerError, "internal error"},
	} {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			assert.NoError(t, writeError(c, tt.err))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
			if tt.code == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(_ context.Context) error { return p.err }

func TestReady(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)
	assert.NoError(t, Ready(failingPinger{err: errors.New("down")})(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)
	assert.NoError(t, Ready(failingPinger{})(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
