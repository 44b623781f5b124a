package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB and *redis.Client adapters.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health is a simple liveness endpoint for load balancers.  It returns a
// plain text "ok" with status 200.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports 503 until every dependency answers a ping.  A nil db is
// the in-memory store and is always ready.
func Ready(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.Logger().Warnf("readiness: database ping failed: %v", err)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "error": "database unreachable"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}
