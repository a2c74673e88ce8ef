package provider

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is the sentinel matched by errors.Is for requests
// rejected before any network I/O.
var ErrInvalidRequest = errors.New("invalid request")

// RequestError reports a prompt call rejected during validation. No stream
// is created and nothing is sent to the provider.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider: invalid request: %s", e.Reason)
}

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

// InvalidRequestf builds a RequestError with a formatted reason.
func InvalidRequestf(format string, args ...any) *RequestError {
	return &RequestError{Reason: fmt.Sprintf(format, args...)}
}
