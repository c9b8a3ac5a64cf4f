package middleware

import (
	"github.com/labstack/echo/v4"

	"bancho-proxy/internal/model"
)

// VirtualHosts hands requests whose Host is not one of route's server names
// to reject, skipping the rest of the chain. It must run before BodyLimit and
// RateLimiter so an unknown Host never sees 413 or 429.
func VirtualHosts(route model.RouteConfig, reject echo.HandlerFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !route.Matches(c.Request().Host) {
				return reject(c)
			}
			return next(c)
		}
	}
}
