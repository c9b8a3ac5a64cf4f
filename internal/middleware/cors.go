// Package middleware provides Echo middleware for logging, metrics and CORS.
package middleware

import (
	"github.com/labstack/echo/v4"
)

// CORS returns an Echo middleware that sets Access-Control-Allow-Origin on
// every response, including error responses written by Echo itself. The
// header is set before the handler runs so it is already in place when the
// status line goes out; handlers must not add a second value.
func CORS(origin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, origin)
			return next(c)
		}
	}
}
