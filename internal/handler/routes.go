package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bancho-proxy/internal/config"
	"bancho-proxy/internal/metrics"
)

// RegisterRoutes wires the proxy onto every path of the proxy listener and the
// health, status and metrics endpoints onto the admin listener.
func RegisterRoutes(proxyEcho, adminEcho *echo.Echo, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	registerProxyRoutes(proxyEcho, proxy)

	adminEcho.GET("/healthz", health.Healthz)
	adminEcho.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		adminEcho.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}

// registerProxyRoutes sends every method on every path to the proxy. Any only
// covers echo's fixed method list; methods outside it (PURGE, PROPFIND, ...)
// reach the router's not-found handler, which is the proxy as well.
func registerProxyRoutes(e *echo.Echo, proxy *ProxyHandler) {
	e.Any("/*", proxy.Handle)
	e.RouteNotFound("/*", proxy.Handle)
}
