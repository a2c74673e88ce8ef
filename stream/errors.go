package stream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a stream terminated abnormally.
type ErrorKind int

const (
	// ErrorTransport covers connection loss and other I/O failures.
	ErrorTransport ErrorKind = iota
	// ErrorMalformed covers frames the adapter could not parse. The
	// offending raw frame is preserved for logging.
	ErrorMalformed
	// ErrorProvider covers errors reported by the provider inside the
	// stream itself.
	ErrorProvider
	// ErrorCancelled reports consumer-initiated termination.
	ErrorCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTransport:
		return "transport"
	case ErrorMalformed:
		return "malformed"
	case ErrorProvider:
		return "provider"
	case ErrorCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("error_kind(%d)", int(k))
	}
}

// StreamError is the terminal error of a token stream. It carries enough
// context to be logged without re-deriving it from raw bytes.
type StreamError struct {
	Kind     ErrorKind
	RawFrame string // ErrorMalformed: the frame that failed to parse
	Code     string // ErrorProvider: provider error code, if any
	Message  string
	cause    error
}

func (e *StreamError) Error() string {
	switch e.Kind {
	case ErrorMalformed:
		if e.cause != nil {
			return fmt.Sprintf("stream: malformed frame %q: %v", e.RawFrame, e.cause)
		}
		return fmt.Sprintf("stream: malformed frame %q: %s", e.RawFrame, e.Message)
	case ErrorProvider:
		if e.Code != "" {
			return fmt.Sprintf("stream: provider error %s: %s", e.Code, e.Message)
		}
		return fmt.Sprintf("stream: provider error: %s", e.Message)
	case ErrorCancelled:
		return "stream: cancelled"
	default:
		if e.cause != nil {
			return fmt.Sprintf("stream: transport failure: %v", e.cause)
		}
		return fmt.Sprintf("stream: transport failure: %s", e.Message)
	}
}

func (e *StreamError) Unwrap() error { return e.cause }

// TransportError wraps a connection or I/O failure.
func TransportError(cause error) *StreamError {
	return &StreamError{Kind: ErrorTransport, cause: cause}
}

// MalformedError reports an unparseable frame, keeping the raw payload.
func MalformedError(rawFrame string, cause error) *StreamError {
	return &StreamError{Kind: ErrorMalformed, RawFrame: rawFrame, cause: cause}
}

// MalformedErrorf reports an unexpected frame with a formatted reason.
func MalformedErrorf(rawFrame, format string, args ...any) *StreamError {
	return &StreamError{Kind: ErrorMalformed, RawFrame: rawFrame, Message: fmt.Sprintf(format, args...)}
}

// ProviderError reports an error the provider delivered in-stream.
func ProviderError(code, message string) *StreamError {
	return &StreamError{Kind: ErrorProvider, Code: code, Message: message}
}

// CancelledError reports consumer-initiated termination.
func CancelledError() *StreamError {
	return &StreamError{Kind: ErrorCancelled}
}

// IsCancelled reports whether err marks consumer-initiated termination, so
// callers can tell "I stopped it" from "it broke".
func IsCancelled(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Kind == ErrorCancelled
}
