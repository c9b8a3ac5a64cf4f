package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKeyRequestID is the echo.Context key holding the request id.
const ContextKeyRequestID = "request_id"

// RequestLogger returns an Echo middleware that logs each request with slog.
// The request id is taken from an inbound X-Request-Id or generated; it is
// logged and stored in the context but never added to the proxied exchange.
// The peer address is the TCP peer, not a header-derived client IP.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set(ContextKeyRequestID, id)

			err := next(c)

			res := c.Response()

			logger.Info("request",
				"method", req.Method,
				"host", req.Host,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", id,
				"remote_addr", req.RemoteAddr,
				"cf_connecting_ip", req.Header.Get("CF-Connecting-IP"),
				"bytes_in", req.ContentLength,
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
