package middleware

// identity.go holds helpers shared across middleware files.  currentUserID
// pulls the subject the session guard stored in the context; requests that
// never passed the guard (most auth endpoints) report "anon", which keeps
// rate-limit bucket keys stable for anonymous traffic.

import (
	"github.com/labstack/echo/v4"
)

// currentUserID extracts the authenticated user id from the Echo context.
// It returns "anon" when no user is authenticated.
func currentUserID(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "anon"
}
