package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Storage and
// outbound calls observe it; a handler that fails because the deadline
// passed is answered with 504. Skipped routes (such as summary generation,
// which has its own client timeout) keep the incoming context.
func RequestTimeout(timeout time.Duration, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || (skip != nil && skip(c)) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				he := echo.NewHTTPError(http.StatusGatewayTimeout,
					errorBody("timeout", "request processing exceeded the allowed time"))
				return he.SetInternal(err)
			}
			return err
		}
	}
}
