// Package handler contains the HTTP handlers for the proxy and admin listeners.
package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bancho-proxy/internal/model"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	route   model.RouteConfig
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(route model.RouteConfig, v Version) *HealthHandler {
	return &HealthHandler{route: route, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	Status             string   `json:"status"`
	Version            string   `json:"version"`
	Upstream           string   `json:"upstream"`
	ServerNames        []string `json:"server_names"`
	ListenPort         int      `json:"listen_port"`
	ReadTimeoutSeconds float64  `json:"read_timeout_seconds"`
	CORSOrigin         string   `json:"cors_origin"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:             "ok",
		Version:            string(h.version),
		Upstream:           h.route.Upstream.Addr(),
		ServerNames:        h.route.ServerNames(),
		ListenPort:         h.route.ListenPort,
		ReadTimeoutSeconds: h.route.ReadTimeout.Seconds(),
		CORSOrigin:         h.route.CORSOrigin,
	})
}
