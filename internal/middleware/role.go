package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles carried in the JWT role claim.
const (
	RoleAgent     = "AGENT"     // sales channel placing holds for customers
	RoleScheduler = "SCHEDULER" // publishes departures and their capacity
)

// RequireRole returns a middleware that aborts with 403 unless the role
// stored by JWTAuth is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
