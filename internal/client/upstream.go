// Package client provides the pooled HTTP client for the upstream server.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"bancho-proxy/internal/config"
	"bancho-proxy/internal/metrics"
	"bancho-proxy/internal/model"
)

// UpstreamClient sends rewritten requests to the single upstream.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The transport checks a pooled connection out for exactly one in-flight
// request at a time. There is no overall request timeout: only the wait for
// response headers is bounded (route.ReadTimeout), so long response bodies
// keep streaming. Every request dials or reuses a connection on its own; a
// failed dial leaves no state behind for the next request.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, route model.RouteConfig, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	c := &UpstreamClient{
		logger:  logger.With("component", "upstream_client", "upstream", route.Upstream.Addr()),
		metrics: m,
	}

	dialer := &net.Dialer{
		Timeout:   time.Duration(cfg.Upstream.ConnectTimeoutSeconds) * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:            c.dialContext(dialer),
		MaxIdleConns:           cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:    cfg.Upstream.IdleConnections,
		IdleConnTimeout:        90 * time.Second,
		ResponseHeaderTimeout:  route.ReadTimeout,
		ExpectContinueTimeout:  1 * time.Second,
		DisableCompression:     true,
		MaxResponseHeaderBytes: 1 << 20,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		// Redirects belong to the caller.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

// dialContext wraps every connect failure in model.ErrUpstreamUnreachable so it
// can be told apart from a header timeout on an established connection.
func (c *UpstreamClient) dialContext(d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			c.observeDial("error")
			return nil, fmt.Errorf("%w: %w", model.ErrUpstreamUnreachable, err)
		}
		c.observeDial("ok")
		return conn, nil
	}
}

func (c *UpstreamClient) observeDial(result string) {
	if c.metrics != nil {
		c.metrics.UpstreamDials.WithLabelValues(result).Inc()
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
		"host", req.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
	}

	if err != nil {
		return nil, classify(req.Context(), err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamResponses.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
	}, nil
}

// DoStream builds the upstream request from out and executes it.
// The caller is responsible for closing the returned body.
// The provided context controls the lifetime of the upstream request:
// when the context is canceled (e.g. client disconnects), the upstream
// request is also canceled.
func (c *UpstreamClient) DoStream(ctx context.Context, out *model.OutboundRequest) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: build upstream request: %w", model.ErrMalformedRequest, err)
	}
	req.Header = out.Header
	req.Host = out.Host
	req.ContentLength = out.ContentLength
	if out.ContentLength == 0 {
		req.Body = nil
		req.GetBody = nil
	}

	return c.Do(req)
}

// classify maps a transport error onto the proxy's failure kinds.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", model.ErrClientDisconnect, err)
	}
	if errors.Is(err, model.ErrUpstreamUnreachable) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", model.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %w", model.ErrUpstreamFailed, err)
}
