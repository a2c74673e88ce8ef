package provider

import (
	"context"

	"github.com/promptwire/promptwire/message"
	"github.com/promptwire/promptwire/stream"
)

// Backend is a hook into an LLM provider. Implementations are stateless
// descriptors (credentials, base URL, model identifier) and may be shared
// across concurrent prompt calls; each call owns its own stream state and
// transport handle.
type Backend interface {
	// Prompt validates the conversation, issues the streamed request, and
	// returns the token stream synchronously, before the response has been
	// fully received. Rejected requests return a *RequestError and perform
	// no network I/O.
	Prompt(ctx context.Context, messages []*message.Message, opts *Options) (*stream.TokenStream, error)
}

// ValidateMessages performs the provider-independent request checks shared
// by every backend. Provider-specific role ordering rules live with each
// backend.
func ValidateMessages(msgs []*message.Message) error {
	if len(msgs) == 0 {
		return InvalidRequestf("prompt requires at least one message")
	}
	for i, msg := range msgs {
		if msg == nil {
			return InvalidRequestf("message %d is nil", i)
		}
		if !msg.Role.Valid() {
			return InvalidRequestf("message %d has unknown role %q", i, msg.Role)
		}
		if msg.Role == message.RoleTool && msg.ToolID == "" {
			return InvalidRequestf("message %d is a tool result without a call id", i)
		}
	}
	return nil
}

// FirstNonSystemIsUser checks the ordering rule shared by providers that
// require conversations to open with a user turn.
func FirstNonSystemIsUser(msgs []*message.Message) error {
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			continue
		}
		if msg.Role != message.RoleUser {
			return InvalidRequestf("conversation must open with a user message, got role %q", msg.Role)
		}
		return nil
	}
	return InvalidRequestf("prompt requires at least one non-system message")
}
