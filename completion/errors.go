package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a completion failure. The set is closed; handlers map each
// kind to a distinct HTTP status.
type Kind int

const (
	// KindResponse is a malformed, empty, or otherwise failed upstream
	// response (HTTP 502 to our callers).
	KindResponse Kind = iota
	// KindAuth means the upstream rejected our credentials (401).
	KindAuth
	// KindModelLoading means the model is warming up and the caller may
	// retry shortly (503). The client never retries on its own.
	KindModelLoading
	// KindTimeout means the upstream did not answer in time (504).
	KindTimeout
	// KindNetwork is a transport-level failure before any response (503).
	KindNetwork
)

// Error is a completion client failure with its classification and any
// upstream detail.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion: %s: %v", e.Message, e.Err)
	}
	return "completion: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code this failure maps to when surfaced to
// API callers.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindModelLoading, KindNetwork:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	ok := errors.As(err, &ce)
	return ce, ok
}
