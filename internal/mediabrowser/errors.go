// SPDX-License-Identifier: MIT

package mediabrowser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNetwork      = errors.New("server: host unreachable or transport failure")
	ErrUnauthorized = errors.New("server: unauthorized (401)")
	ErrForbidden    = errors.New("server: access forbidden (403)")
	ErrNotFound     = errors.New("server: resource not found (404)")
	ErrServer       = errors.New("server: internal error (5xx or 429)")
	ErrValidation   = errors.New("server: bad request (4xx)")
	ErrCancelled    = errors.New("server: operation cancelled")
	ErrUnknown      = errors.New("server: unknown error")
)

// APIError wraps a sentinel category with request context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Err       error // nested lower-level error (e.g. net.Error)
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("mediabrowser: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

// classifyStatus maps an HTTP status code to a sentinel category.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrServer
	case status >= 400:
		return ErrValidation
	default:
		return ErrUnknown
	}
}

// classifyTransport maps a transport-level error to a sentinel category.
// Cancellation is preserved, never folded into the network category.
func classifyTransport(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCancelled
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			return ErrNetwork
		}
		return ErrNetwork
	}
}

// retryable reports whether the policy-level retry may re-attempt the call.
// Auth, forbidden, not-found and validation failures are final; cancellation
// is always final.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrServer):
		return true
	default:
		return false
	}
}
