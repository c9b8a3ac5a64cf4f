package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"bancho-proxy/internal/metrics"
	"bancho-proxy/internal/model"
	"bancho-proxy/internal/service"
)

// copyBufferSize matches io.Copy's default buffer.
const copyBufferSize = 32 * 1024

// ProxyHandler forwards requests for the configured virtual hosts to the upstream.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler.
// The metrics parameter is optional; pass nil to disable outcome recording.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle proxies the request to the upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		URL:           req.URL,
		Host:          req.Host,
		RemoteAddr:    req.RemoteAddr,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		h.observe(model.StateForError(err))
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The CORS middleware has already set Access-Control-Allow-Origin and the
	// service removed any upstream value, so plain Add keeps it single.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If the copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status.
	if err := h.copyBody(c, resp); err != nil {
		if req.Context().Err() != nil {
			h.observe(model.StateClientGone)
			h.logger.Debug("client went away while streaming", "path", req.URL.Path, "err", err)
			return nil
		}
		h.observe(model.StateUpstreamFailed)
		h.logger.Error("streaming response body",
			"err", err,
			"host", req.Host,
			"path", req.URL.Path,
		)
		return nil
	}

	h.observe(model.StateCompleted)
	return nil
}

// copyBody writes the upstream body to the client. Bodies of unknown length
// are flushed after every chunk so long-lived responses reach the client as
// they are produced.
func (h *ProxyHandler) copyBody(c echo.Context, resp *model.ProxyResponse) error {
	if resp.ContentLength != -1 {
		_, err := io.Copy(c.Response(), resp.Body)
		return err
	}

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Response().Write(buf[:n]); werr != nil {
				return werr
			}
			c.Response().Flush()
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func (h *ProxyHandler) observe(state model.RequestState) {
	if h.metrics != nil {
		h.metrics.RequestOutcomes.WithLabelValues(state.String()).Inc()
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	req := c.Request()

	switch {
	case errors.Is(err, model.ErrClientDisconnect):
		// Nobody is left to read a response.
		h.logger.Debug("client disconnected before upstream responded",
			"host", req.Host,
			"path", req.URL.Path,
		)
		return nil

	case errors.Is(err, model.ErrMalformedRequest):
		h.logger.Warn("malformed request", "err", err, "remote_addr", req.RemoteAddr)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed request",
		})

	case errors.Is(err, model.ErrNoMatchingRoute):
		h.logger.Info("no matching route", "host", req.Host, "remote_addr", req.RemoteAddr)
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no matching route for host",
		})
	}

	h.logger.Error("proxy error",
		"err", err,
		"host", req.Host,
		"path", req.URL.Path,
	)

	switch {
	case errors.Is(err, model.ErrUpstreamTimeout):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	case errors.Is(err, model.ErrUpstreamUnreachable):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream unreachable",
		})
	default:
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream request failed",
		})
	}
}
