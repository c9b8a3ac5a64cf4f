package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"bancho-proxy/internal/metrics"
	"bancho-proxy/internal/model"
)

func testRoute() model.RouteConfig {
	return model.NewRouteConfig(80, []string{"c.aisuru.xyz", "ce.aisuru.xyz"},
		model.Upstream{Host: "127.0.0.1", Port: 9823}, time.Hour, "*")
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, testRoute()))
	e.Any("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "http://CE.aisuru.xyz/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "200", "ce.aisuru.xyz")); got != 1 {
		t.Errorf("counter value = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsInFlight); got != 0 {
		t.Errorf("in-flight = %v, want 0 after completion", got)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, testRoute()))
	e.GET("/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "http://c.aisuru.xyz/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "bancho_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected bancho_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, testRoute()))
	e.GET("/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge)
	})

	req := httptest.NewRequest(http.MethodGet, "http://c.aisuru.xyz/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "413", "c.aisuru.xyz")); got != 1 {
		t.Errorf("413 counter = %v, want 1", got)
	}
}

func TestMetricsMiddleware_UnknownHostAndMethodNormalized(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m, testRoute()))
	noRoute := func(c echo.Context) error {
		return c.String(http.StatusNotFound, "no route")
	}
	e.Any("/*", noRoute)
	e.RouteNotFound("/*", noRoute)

	req := httptest.NewRequest("XYZZY", "http://evil.example.com/", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("other", "404", "other")); got != 1 {
		t.Errorf("counter value = %v, want 1 for method=other vhost=other", got)
	}
}
