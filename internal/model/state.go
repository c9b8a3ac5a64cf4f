package model

import "errors"

// RequestState is a step in the lifecycle of one proxied request.
type RequestState int

const (
	StateReceived RequestState = iota
	StateRouteMatched
	StateForwarded
	StateStreaming
	StateCompleted
	StateTimedOut
	StateUpstreamFailed
	StateRouteRejected
	StateMalformed
	StateClientGone
)

var stateNames = [...]string{
	StateReceived:       "received",
	StateRouteMatched:   "route_matched",
	StateForwarded:      "forwarded_to_upstream",
	StateStreaming:      "response_streaming",
	StateCompleted:      "completed",
	StateTimedOut:       "timed_out",
	StateUpstreamFailed: "upstream_failed",
	StateRouteRejected:  "route_rejected",
	StateMalformed:      "malformed",
	StateClientGone:     "client_gone",
}

func (s RequestState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible from s.
func (s RequestState) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateUpstreamFailed, StateRouteRejected, StateMalformed, StateClientGone:
		return true
	}
	return false
}

// StateForError returns the terminal state a forwarding error leads to.
func StateForError(err error) RequestState {
	switch {
	case err == nil:
		return StateCompleted
	case errors.Is(err, ErrClientDisconnect):
		return StateClientGone
	case errors.Is(err, ErrMalformedRequest):
		return StateMalformed
	case errors.Is(err, ErrNoMatchingRoute):
		return StateRouteRejected
	case errors.Is(err, ErrUpstreamTimeout):
		return StateTimedOut
	default:
		return StateUpstreamFailed
	}
}
