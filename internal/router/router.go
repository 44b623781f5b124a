package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/departure-seat-lock/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication:
// liveness at /healthz and readiness at /readyz.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
}
