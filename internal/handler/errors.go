package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
)

// writeError translates an engine error into the JSON error response.
// Unexpected errors are logged and answered with a generic 500.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, booking.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_quantity", "message": err.Error()})
	case errors.Is(err, booking.ErrInvalidOwner):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_owner"})
	case errors.Is(err, booking.ErrInsufficientSeats):
		return c.JSON(http.StatusConflict, echo.Map{"error": "insufficient_seats", "message": err.Error()})
	case errors.Is(err, booking.ErrHoldNotActive):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold_not_active", "message": err.Error()})
	case errors.Is(err, booking.ErrConflict), errors.Is(err, booking.ErrStaleState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, booking.ErrLockTimeout):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy", "message": "departure is busy, retry shortly"})
	case errors.Is(err, booking.ErrCapacityExceeded):
		// already logged as an alert by the manager
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
