package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/departure-seat-lock/internal/booking"
	"github.com/iliyamo/departure-seat-lock/internal/model"
)

// DepartureHandler lets the scheduling collaborator publish departures.
type DepartureHandler struct {
	Registry booking.DepartureRegistry
}

// NewDepartureHandler constructs a DepartureHandler.
func NewDepartureHandler(r booking.DepartureRegistry) *DepartureHandler {
	if r == nil {
		panic("nil registry passed to NewDepartureHandler")
	}
	return &DepartureHandler{Registry: r}
}

// CreateDeparture handles POST /v1/departures with body {"id", "capacity"}.
// Capacity is fixed from then on; a second create with the same id is a
// 409 conflict.
func (h *DepartureHandler) CreateDeparture(c echo.Context) error {
	var body struct {
		ID       string `json:"id"`
		Capacity int    `json:"capacity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.ID = strings.TrimSpace(body.ID)
	if body.ID == "" || len(body.ID) > 64 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id is required (at most 64 characters)"})
	}
	if body.Capacity <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "capacity must be positive"})
	}
	d := model.Departure{ID: body.ID, Capacity: body.Capacity, CreatedAt: time.Now().UTC()}
	if err := h.Registry.CreateDeparture(c.Request().Context(), d); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}
