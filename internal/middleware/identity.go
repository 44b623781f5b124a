package middleware

// identity.go holds the helpers that turn token claims into the owner
// reference the booking engine stores on a hold.  The engine treats the
// value as opaque.

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// subject returns the sub claim as a string.  Identity providers issue it
// either as a string or as a JSON number.
func subject(cl jwt.MapClaims) string {
	switch v := cl["sub"].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// OwnerRef returns the owner reference stored by JWTAuth, or "" on an
// unauthenticated request.
func OwnerRef(c echo.Context) string {
	s, _ := c.Get(ctxOwnerRef).(string)
	return s
}
