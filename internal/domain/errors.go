package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across service boundaries.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrQueueFull    = errors.New("upload queue full")
)

// ValidationError reports a missing or malformed required field.
// It is resolved at the gateway and never forwarded downstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Field + " is required"
}

// Validation builds a ValidationError for a missing required field.
func Validation(field string) *ValidationError {
	return &ValidationError{Field: field}
}

// DownstreamError wraps a transport-level failure (connection refused,
// timeout, unreadable body) talking to a peer service. It carries the
// peer's name so clients and logs can tell which peer was down.
type DownstreamError struct {
	Service string
	Err     error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s service unavailable: %v", e.Service, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// ErrorResponse is the standard JSON error envelope returned to clients.
// CorrelationID lets operators tie a client-visible failure to gateway
// and peer logs; the envelope never carries the API key or stack traces.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}
