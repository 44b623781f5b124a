package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/middleware"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// HoldHandler exposes the lock manager to sales agents.  Authentication
// and role checks happen in middleware; the owner of a new hold is the
// token's subject.
type HoldHandler struct {
	Manager *booking.Manager
}

// NewHoldHandler constructs a HoldHandler.  m must be non-nil.
func NewHoldHandler(m *booking.Manager) *HoldHandler {
	if m == nil {
		panic("nil manager passed to NewHoldHandler")
	}
	return &HoldHandler{Manager: m}
}

// Availability handles GET /v1/departures/:id/availability.
func (h *HoldHandler) Availability(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
	}
	a, err := h.Manager.Availability(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

type createHoldRequest struct {
	Quantity int `json:"quantity"`
}

type createHoldResponse struct {
	HoldID    string         `json:"hold_id"`
	ExpiresAt time.Time      `json:"expires_at"`
	Hold      model.SeatHold `json:"hold"`
}

// CreateHold handles POST /v1/departures/:id/holds with body
// {"quantity": n}.  It answers 201 with the hold id and its expiry, or
// 409 insufficient_seats when fewer seats are available.
func (h *HoldHandler) CreateHold(c echo.Context) error {
	owner := middleware.OwnerRef(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid departure id"})
	}
	var body createHoldRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	hold, err := h.Manager.CreateHold(c.Request().Context(), id, body.Quantity, owner)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, createHoldResponse{HoldID: hold.ID, ExpiresAt: hold.ExpiresAt, Hold: hold})
}

// GetHold handles GET /v1/holds/:id.  The state in the response is the
// effective one: a lapsed pending hold reads as expired.
func (h *HoldHandler) GetHold(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	hold, err := h.Manager.GetHold(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, hold)
}

// ConfirmHold handles POST /v1/holds/:id/confirm.  Repeating the call
// for a confirmed hold succeeds with already_confirmed set.
func (h *HoldHandler) ConfirmHold(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	res, err := h.Manager.ConfirmHold(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"confirmed":         true,
		"already_confirmed": res.AlreadyConfirmed,
		"hold":              res.Hold,
	})
}

// ReleaseHold handles POST /v1/holds/:id/release and DELETE /v1/holds/:id.
// Releasing a hold that is no longer pending is not an error; the
// response carries the state it ended in.
func (h *HoldHandler) ReleaseHold(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid hold id"})
	}
	hold, err := h.Manager.ReleaseHold(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true, "hold": hold})
}

func pathID(c echo.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	return id, id != "" && len(id) <= 64
}
