package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/departure-seat-lock/internal/handler"
	"github.com/iliyamo/departure-seat-lock/internal/middleware"
)

// RegisterBooking registers the seat inventory endpoints under /v1.  All
// of them require a valid JWT.  Agents hold, confirm and release seats;
// schedulers publish departures and may read availability.  rateLimit
// guards hold creation and cache fronts the availability read; either
// may be nil.
func RegisterBooking(e *echo.Echo, h *handler.HoldHandler, d *handler.DepartureHandler, jwtSecret string, rateLimit, cache echo.MiddlewareFunc) {
	v1 := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	agent := middleware.RequireRole(middleware.RoleAgent)
	anyRole := middleware.RequireRole(middleware.RoleAgent, middleware.RoleScheduler)

	v1.GET("/departures/:id/availability", h.Availability, with(anyRole, cache)...)
	v1.POST("/departures/:id/holds", h.CreateHold, with(agent, rateLimit)...)
	v1.GET("/holds/:id", h.GetHold, agent)
	v1.POST("/holds/:id/confirm", h.ConfirmHold, agent)
	v1.POST("/holds/:id/release", h.ReleaseHold, agent)
	v1.DELETE("/holds/:id", h.ReleaseHold, agent)

	v1.POST("/departures", d.CreateDeparture, middleware.RequireRole(middleware.RoleScheduler))
}

func with(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := mw[:0:0]
	for _, m := range mw {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
