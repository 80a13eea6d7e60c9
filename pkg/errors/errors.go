package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedResponse   = errors.New("malformed upstream response")
	ErrTokenUnavailable    = errors.New("token unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidRecord       = errors.New("invalid record")
	ErrTimeout             = errors.New("operation timed out")
)

// UpstreamError is the single failure shape returned by upstream clients.
// It always matches ErrUpstreamUnavailable with errors.Is, and also matches
// the underlying cause.
type UpstreamError struct {
	Upstream   string
	StatusCode int
	Cause      error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", ErrUpstreamUnavailable, e.Upstream, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", ErrUpstreamUnavailable, e.Upstream, e.Cause)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Cause}
}

func Upstream(name string, statusCode int, cause error) *UpstreamError {
	return &UpstreamError{Upstream: name, StatusCode: statusCode, Cause: cause}
}

// Reason classifies err into a short, low-cardinality label for metrics and
// the failure ledger.
func Reason(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrTokenUnavailable):
		return "token"
	case errors.Is(err, ErrMalformedResponse):
		return "decode"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &upErr) && upErr.StatusCode >= 500:
		return "server_error"
	case errors.As(err, &upErr) && upErr.StatusCode >= 400:
		return "client_error"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "transport"
	}
}
