package middleware

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// ClientIP returns the visitor address Cloudflare reports in CF-Connecting-IP,
// falling back to the TCP peer. X-Forwarded-For and X-Real-IP are client
// controlled and never consulted.
func ClientIP(c echo.Context) string {
	req := c.Request()
	if ip := strings.TrimSpace(req.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

// RateLimiter returns a per-client rate limiter keyed by ClientIP, allowing
// rps requests per second with a burst of ceil(rps).
func RateLimiter(rps float64) echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: echomw.NewRateLimiterMemoryStore(rate.Limit(rps)),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return ClientIP(c), nil
		},
	})
}
