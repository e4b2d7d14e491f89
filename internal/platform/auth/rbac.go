package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding any of roles. Callers with no identity
// get 401; identified callers without a matching role get 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := map[string]string{
		"error":   "forbidden",
		"message": "required role: " + strings.Join(roles, " or "),
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if slices.ContainsFunc(RolesFromContext(ctx), func(r string) bool {
				return slices.Contains(roles, r)
			}) {
				return next(c)
			}
			if UserIDFromContext(ctx) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": "authentication required",
				})
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}
