package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "c.aisuru.xyz").Inc()
	m.UpstreamDials.WithLabelValues("ok").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"bancho_proxy_http_requests_total":  false,
		"bancho_proxy_upstream_dials_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestOutcomesCounter(t *testing.T) {
	m := New()
	m.RequestOutcomes.WithLabelValues("completed").Inc()
	m.RequestOutcomes.WithLabelValues("completed").Inc()
	m.RequestOutcomes.WithLabelValues("timed_out").Inc()

	if got := testutil.ToFloat64(m.RequestOutcomes.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.RequestOutcomes); got != 2 {
		t.Errorf("series = %d, want 2", got)
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"X-CUSTOM", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestVHostLabel(t *testing.T) {
	if got := VHostLabel("c.aisuru.xyz"); got != "c.aisuru.xyz" {
		t.Errorf("VHostLabel() = %q, want %q", got, "c.aisuru.xyz")
	}
	if got := VHostLabel(""); got != "other" {
		t.Errorf("VHostLabel(\"\") = %q, want %q", got, "other")
	}
}
