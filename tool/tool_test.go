package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/promptwire/promptwire/message"
)

func weatherTool(t *testing.T, invoked *bool) *Tool {
	t.Helper()
	return &Tool{
		Name:        "get_weather",
		Description: "Look up the weather for a city",
		Parameters: []Parameter{
			{Name: "city", Type: "string", Description: "City name", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if invoked != nil {
				*invoked = true
			}
			return "sunny in " + args["city"].(string), nil
		},
	}
}

func TestDispatchSuccess(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(weatherTool(t, nil)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	call := &Call{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`}
	msg, err := registry.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if msg.Role != message.RoleTool {
		t.Errorf("Expected role %s, got %s", message.RoleTool, msg.Role)
	}
	if msg.ToolID != "call_1" {
		t.Errorf("Expected tool id 'call_1', got %q", msg.ToolID)
	}
	if msg.Content != "sunny in Paris" {
		t.Errorf("Expected handler result, got %q", msg.Content)
	}
}

func TestDispatchInvalidArgumentType(t *testing.T) {
	invoked := false
	registry := NewRegistry()
	registry.Register(weatherTool(t, &invoked))

	call := &Call{ID: "call_2", Name: "get_weather", Arguments: `{"city":42}`}
	_, err := registry.Dispatch(context.Background(), call)
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
	if invoked {
		t.Error("Handler must not be invoked on invalid arguments")
	}

	var invalid *InvalidArgumentsError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected *InvalidArgumentsError, got %T", err)
	}
	if invalid.Raw != `{"city":42}` {
		t.Errorf("Expected raw arguments to be preserved, got %q", invalid.Raw)
	}
	if invalid.CallID != "call_2" {
		t.Errorf("Expected call id to be preserved, got %q", invalid.CallID)
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	invoked := false
	registry := NewRegistry()
	registry.Register(weatherTool(t, &invoked))

	call := &Call{ID: "call_3", Name: "get_weather", Arguments: `{"city":`}
	_, err := registry.Dispatch(context.Background(), call)
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
	if invoked {
		t.Error("Handler must not be invoked on malformed arguments")
	}
}

func TestDispatchMissingRequiredParameter(t *testing.T) {
	registry := NewRegistry()
	registry.Register(weatherTool(t, nil))

	call := &Call{ID: "call_4", Name: "get_weather", Arguments: `{}`}
	if _, err := registry.Dispatch(context.Background(), call); !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Expected ErrInvalidArguments, got %v", err)
	}
}

func TestDispatchEmptyArgumentsForParameterlessTool(t *testing.T) {
	registry := NewRegistry()
	invoked := false
	err := registry.Register(&Tool{
		Name:        "get_time",
		Description: "Current UTC time",
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			invoked = true
			return "12:00", nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	call := &Call{ID: "call_1", Name: "get_time", Arguments: ""}
	msg, err := registry.Dispatch(context.Background(), call)
	if err != nil {
		t.Fatalf("Expected empty arguments to be accepted, got %v", err)
	}
	if !invoked {
		t.Error("Expected handler to be invoked")
	}
	if msg.Content != "12:00" {
		t.Errorf("Expected handler result, got %q", msg.Content)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := NewRegistry()
	registry.Register(weatherTool(t, nil))

	call := &Call{ID: "call_5", Name: "unregistered_tool", Arguments: `{}`}
	if _, err := registry.Dispatch(context.Background(), call); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Expected ErrUnknownTool, got %v", err)
	}
}

func TestValidateArgsEnum(t *testing.T) {
	tl := &Tool{
		Name: "set_units",
		Parameters: []Parameter{
			{Name: "units", Type: "string", Required: true, Enum: []string{"metric", "imperial"}},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
	}

	if err := tl.ValidateArgs(map[string]any{"units": "metric"}); err != nil {
		t.Errorf("Expected enum member to validate, got %v", err)
	}
	if err := tl.ValidateArgs(map[string]any{"units": "kelvin"}); err == nil {
		t.Error("Expected non-member enum value to fail")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(weatherTool(t, nil)); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(weatherTool(t, nil)); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestParametersSchema(t *testing.T) {
	schema := weatherTool(t, nil).ParametersSchema()

	if schema["type"] != "object" {
		t.Errorf("Expected object schema, got %v", schema["type"])
	}
	props := schema["properties"].(map[string]any)
	if _, ok := props["city"]; !ok {
		t.Error("Expected 'city' property in schema")
	}
	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "city" {
		t.Errorf("Expected required [city], got %v", required)
	}
}
