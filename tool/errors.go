package tool

import (
	"errors"
	"fmt"
)

// ErrUnknownTool indicates a tool call naming a tool that was never
// registered. The handler is not invoked.
var ErrUnknownTool = errors.New("unknown tool")

// ErrInvalidArguments is the sentinel matched by errors.Is for argument
// failures; the concrete error is an *InvalidArgumentsError.
var ErrInvalidArguments = errors.New("invalid arguments")

// InvalidArgumentsError reports a tool call whose argument document failed
// to parse or did not match the tool's declared schema. It keeps the raw
// argument text and the call id so the caller can report the failure back to
// the model as a tool result.
type InvalidArgumentsError struct {
	CallID string
	Tool   string
	Raw    string
	cause  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("tool %q call %s: invalid arguments %q: %v", e.Tool, e.CallID, e.Raw, e.cause)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.cause }

func (e *InvalidArgumentsError) Is(target error) bool { return target == ErrInvalidArguments }
