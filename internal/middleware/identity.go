package middleware

// identity.go holds the context keys JWTAuth fills and the accessors the
// rest of the app reads them with.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// UserID returns the authenticated user's id.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role, or "" for guests.
func Role(c echo.Context) string {
	role, _ := c.Get(ctxRole).(string)
	return role
}

// SetIdentity stores an authenticated identity on the context.
func SetIdentity(c echo.Context, userID uint64, role string) {
	c.Set(ctxUserID, userID)
	c.Set(ctxRole, role)
}

// subject is the rate limiter's view of the caller: the user id, or
// "anon" when the request is not authenticated.
func subject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
