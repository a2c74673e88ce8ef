package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/promptwire/promptwire/message"
)

// Dispatch validates a completed call against the named tool's declared
// schema and, only on success, invokes the handler. The handler's return
// value is serialized into a RoleTool message tagged with the call id, ready
// to be appended to the next prompt turn.
//
// Unknown tools and invalid arguments are typed, reportable outcomes; in
// neither case is any handler invoked. The caller decides whether to abort
// the conversation or report the failure back to the model.
func (r *Registry) Dispatch(ctx context.Context, call *Call) (*message.Message, error) {
	if call == nil {
		return nil, fmt.Errorf("tool call cannot be nil")
	}

	t, ok := r.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q call %s: %w", call.Name, call.ID, ErrUnknownTool)
	}

	// Providers occasionally omit the argument document entirely for tools
	// declared without parameters.
	raw := call.Arguments
	if raw == "" {
		raw = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &InvalidArgumentsError{CallID: call.ID, Tool: call.Name, Raw: call.Arguments, cause: err}
	}
	if err := t.ValidateArgs(args); err != nil {
		return nil, &InvalidArgumentsError{CallID: call.ID, Tool: call.Name, Raw: call.Arguments, cause: err}
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %q call %s: handler: %w", call.Name, call.ID, err)
	}

	return message.NewToolResponseMessage(call.ID, result), nil
}
