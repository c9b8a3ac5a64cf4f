// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// ProxyRequest is an inbound request as accepted on the proxy listener.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	URL           *url.URL
	Host          string
	RemoteAddr    string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// OutboundRequest is a ProxyRequest after header rewriting, addressed to the upstream.
type OutboundRequest struct {
	Method        string
	URL           string
	Host          string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode    int
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}
