package provider

import (
	"errors"
	"testing"

	"github.com/promptwire/promptwire/message"
)

func TestValidateMessagesEmpty(t *testing.T) {
	err := ValidateMessages(nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestValidateMessagesUnknownRole(t *testing.T) {
	msgs := []*message.Message{{Role: "robot", Content: "hi"}}
	if err := ValidateMessages(msgs); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestValidateMessagesToolResultNeedsCallID(t *testing.T) {
	msgs := []*message.Message{message.NewMessage(message.RoleTool, "result")}
	if err := ValidateMessages(msgs); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestValidateMessagesAccepts(t *testing.T) {
	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, "be nice"),
		message.NewMessage(message.RoleUser, "hi"),
		message.NewMessage(message.RoleAssistant, "hello"),
		message.NewToolResponseMessage("call_1", "42"),
	}
	if err := ValidateMessages(msgs); err != nil {
		t.Fatalf("Expected valid conversation, got %v", err)
	}
}

func TestFirstNonSystemIsUser(t *testing.T) {
	ok := []*message.Message{
		message.NewMessage(message.RoleSystem, "be nice"),
		message.NewMessage(message.RoleUser, "hi"),
	}
	if err := FirstNonSystemIsUser(ok); err != nil {
		t.Errorf("Expected ordering to be accepted, got %v", err)
	}

	bad := []*message.Message{message.NewMessage(message.RoleAssistant, "hello")}
	if err := FirstNonSystemIsUser(bad); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}

	onlySystem := []*message.Message{message.NewMessage(message.RoleSystem, "be nice")}
	if err := FirstNonSystemIsUser(onlySystem); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.MaxTokens != DefaultMaxTokens {
		t.Errorf("Expected max tokens %d, got %d", DefaultMaxTokens, opts.MaxTokens)
	}
	if opts.Temperature != DefaultTemperature {
		t.Errorf("Expected temperature %v, got %v", DefaultTemperature, opts.Temperature)
	}
}

func TestOptionsFluentSetters(t *testing.T) {
	opts := DefaultOptions().
		WithMaxTokens(128).
		WithTemperature(0.2).
		WithSystemPrompt("be terse").
		WithStopSequence("\n\n").
		WithReasoning(ReasoningHigh)

	if opts.MaxTokens != 128 || opts.Temperature != 0.2 {
		t.Errorf("Unexpected options: %+v", opts)
	}
	if opts.SystemPrompt != "be terse" || len(opts.StopSequences) != 1 {
		t.Errorf("Unexpected options: %+v", opts)
	}
	if opts.Reasoning != ReasoningHigh {
		t.Errorf("Expected reasoning high, got %q", opts.Reasoning)
	}
}

func TestOrDefaults(t *testing.T) {
	var opts *Options
	if got := opts.OrDefaults(); got.MaxTokens != DefaultMaxTokens {
		t.Errorf("Expected defaults for nil options, got %+v", got)
	}
}
