package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"bancho-proxy/internal/model"
)

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(model.RouteConfig{}, "test")
	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/proxy/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	route := model.NewRouteConfig(80, []string{"c.aisuru.xyz", "ce.aisuru.xyz"},
		model.Upstream{Host: "127.0.0.1", Port: 9823}, time.Hour, "*")
	h := NewHealthHandler(route, "1.2.3")
	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("body.status = %q, want %q", body.Status, "ok")
	}
	if body.Version != "1.2.3" {
		t.Errorf("body.version = %q, want %q", body.Version, "1.2.3")
	}
	if body.Upstream != "127.0.0.1:9823" {
		t.Errorf("body.upstream = %q, want %q", body.Upstream, "127.0.0.1:9823")
	}
	if want := []string{"c.aisuru.xyz", "ce.aisuru.xyz"}; !slices.Equal(body.ServerNames, want) {
		t.Errorf("body.server_names = %v, want %v", body.ServerNames, want)
	}
	if body.ListenPort != 80 {
		t.Errorf("body.listen_port = %d, want 80", body.ListenPort)
	}
	if body.ReadTimeoutSeconds != 3600 {
		t.Errorf("body.read_timeout_seconds = %v, want 3600", body.ReadTimeoutSeconds)
	}
	if body.CORSOrigin != "*" {
		t.Errorf("body.cors_origin = %q, want %q", body.CORSOrigin, "*")
	}
}
