// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"bancho-proxy/internal/model"
)

// Request and response headers touched by the rewrite.
const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
	HeaderAllowOrigin    = "Access-Control-Allow-Origin"
)

// hopByHopHeaders apply to a single connection and are never forwarded (RFC 9110 §7.6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder executes rewritten requests against the upstream.
type Forwarder interface {
	DoStream(ctx context.Context, out *model.OutboundRequest) (*model.ProxyResponse, error)
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client Forwarder
	route  model.RouteConfig
	logger *slog.Logger
}

// NewProxyService creates a ProxyService bound to route.
func NewProxyService(c Forwarder, route model.RouteConfig, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		route:  route,
		logger: logger.With("component", "proxy_service"),
	}
}

// Forward matches pr against the route, rewrites it and sends it upstream.
// The caller is responsible for closing the response body.
//
// Requests with a missing or invalid Host fail with model.ErrMalformedRequest
// and requests for an unknown host with model.ErrNoMatchingRoute; neither
// touches the upstream. Upstream failures are returned as classified by the
// client and are never retried.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	if pr.Host == "" || !httpguts.ValidHostHeader(pr.Host) {
		return nil, fmt.Errorf("%w: invalid Host header %q", model.ErrMalformedRequest, pr.Host)
	}
	if !s.route.Matches(pr.Host) {
		return nil, fmt.Errorf("%w: %q", model.ErrNoMatchingRoute, pr.Host)
	}

	out := s.buildOutbound(pr)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", pr.Host,
		"path", pr.URL.Path,
		"state", model.StateForwarded.String(),
	)

	resp, err := s.client.DoStream(pr.Ctx, out)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

func (s *ProxyService) buildOutbound(pr *model.ProxyRequest) *model.OutboundRequest {
	var body io.ReadCloser
	if pr.ContentLength != 0 {
		body = pr.Body
	}
	return &model.OutboundRequest{
		Method:        pr.Method,
		URL:           s.buildUpstreamURL(pr.URL),
		Host:          pr.Host,
		Header:        s.rewriteRequestHeaders(pr.Header, pr.RemoteAddr),
		Body:          body,
		ContentLength: pr.ContentLength,
	}
}

// buildUpstreamURL keeps the escaped path and raw query of the inbound URL
// and points it at the upstream address over plain HTTP.
func (s *ProxyService) buildUpstreamURL(in *url.URL) string {
	u := url.URL{
		Scheme:   "http",
		Host:     s.route.Upstream.Addr(),
		Path:     in.Path,
		RawPath:  in.RawPath,
		RawQuery: in.RawQuery,
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// rewriteRequestHeaders copies src minus hop-by-hop headers and sets the
// forwarding headers. X-Forwarded-For carries the Cloudflare client address
// verbatim and is empty when Cloudflare did not send one; X-Real-IP is the
// TCP peer.
func (s *ProxyService) rewriteRequestHeaders(src http.Header, remoteAddr string) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)

	dst.Set(HeaderXForwardedFor, src.Get(HeaderCFConnectingIP))
	dst.Set(HeaderXRealIP, peerIP(remoteAddr))

	// An absent User-Agent must stay absent rather than become Go's default.
	if _, ok := dst["User-Agent"]; !ok {
		dst.Set("User-Agent", "")
	}
	return dst
}

// filterResponseHeaders drops hop-by-hop headers and any upstream CORS origin,
// which the proxy always sets itself.
func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)
	dst.Del(HeaderAllowOrigin)
	return dst
}

// removeHopByHop deletes hop-by-hop headers, including those named in Connection.
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if token = textproto.TrimString(token); httpguts.ValidHeaderFieldName(token) {
				h.Del(token)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// peerIP returns the IP part of a host:port remote address.
func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
