package model

import (
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Upstream is the single backend address requests are forwarded to.
type Upstream struct {
	Host string
	Port int
}

// Addr returns the upstream as host:port.
func (u Upstream) Addr() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(u.Port))
}

// RouteConfig describes the one virtual-host route served by the proxy.
// It is built once at startup and shared by value; serverNames is never
// written after NewRouteConfig returns.
type RouteConfig struct {
	ListenPort  int
	Upstream    Upstream
	ReadTimeout time.Duration
	CORSOrigin  string

	serverNames map[string]struct{}
}

// NewRouteConfig builds a RouteConfig. Server names are normalized with NormalizeHost.
func NewRouteConfig(listenPort int, serverNames []string, upstream Upstream, readTimeout time.Duration, corsOrigin string) RouteConfig {
	names := make(map[string]struct{}, len(serverNames))
	for _, n := range serverNames {
		if n = NormalizeHost(n); n != "" {
			names[n] = struct{}{}
		}
	}
	return RouteConfig{
		ListenPort:  listenPort,
		Upstream:    upstream,
		ReadTimeout: readTimeout,
		CORSOrigin:  corsOrigin,
		serverNames: names,
	}
}

// Matches reports whether host (a Host header value) is one of the configured server names.
func (r RouteConfig) Matches(host string) bool {
	_, ok := r.serverNames[NormalizeHost(host)]
	return ok
}

// VirtualHost returns the normalized server name for host, or "" when it does not match.
func (r RouteConfig) VirtualHost(host string) string {
	h := NormalizeHost(host)
	if _, ok := r.serverNames[h]; ok {
		return h
	}
	return ""
}

// ServerNames returns the configured names in sorted order.
func (r RouteConfig) ServerNames() []string {
	out := make([]string, 0, len(r.serverNames))
	for n := range r.serverNames {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// NormalizeHost strips the port, IPv6 brackets and a trailing dot from a
// Host header value and lower-cases the result.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	h = strings.TrimSuffix(h, ".")
	return strings.ToLower(h)
}
