package model

import "errors"

// Failure kinds of a single proxied request. None of them outlive the request.
var (
	ErrMalformedRequest    = errors.New("malformed request")
	ErrNoMatchingRoute     = errors.New("no matching route")
	ErrUpstreamUnreachable = errors.New("upstream unreachable")
	ErrUpstreamTimeout     = errors.New("upstream timed out awaiting response headers")
	ErrUpstreamFailed      = errors.New("upstream request failed")
	ErrClientDisconnect    = errors.New("client disconnected")
)
