package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
}

func TestNewToolCallMessage(t *testing.T) {
	toolCalls := []ToolCall{
		{ID: "call1", Name: "tool1", Arguments: `{"arg1":"value1"}`},
	}

	msg := NewToolCallMessage("", toolCalls)

	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %s, got %s", RoleAssistant, msg.Role)
	}

	if len(msg.ToolCalls) != 1 {
		t.Errorf("Expected 1 tool call, got %d", len(msg.ToolCalls))
	}

	if msg.ToolCalls[0].Name != "tool1" {
		t.Errorf("Expected tool name 'tool1', got '%s'", msg.ToolCalls[0].Name)
	}
}

func TestNewToolResponseMessage(t *testing.T) {
	msg := NewToolResponseMessage("call1", "result")

	if msg.Role != RoleTool {
		t.Errorf("Expected role %s, got %s", RoleTool, msg.Role)
	}
	if msg.ToolID != "call1" {
		t.Errorf("Expected tool id 'call1', got '%s'", msg.ToolID)
	}
	if msg.Content != "result" {
		t.Errorf("Expected content 'result', got '%s'", msg.Content)
	}
}

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		if !role.Valid() {
			t.Errorf("Expected role %s to be valid", role)
		}
	}
	if Role("robot").Valid() {
		t.Error("Expected unknown role to be invalid")
	}
}

func TestClone(t *testing.T) {
	original := NewToolCallMessage("thinking", []ToolCall{{ID: "c1", Name: "t1", Arguments: "{}"}})

	cloned := Clone(original)
	cloned.ToolCalls[0].Name = "changed"

	if original.ToolCalls[0].Name != "t1" {
		t.Error("Expected clone to not share tool call slice with original")
	}
}
