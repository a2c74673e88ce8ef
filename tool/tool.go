package tool

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Parameter defines a tool parameter
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Handler executes a validated tool call and returns the text fed back to
// the model as the tool result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool represents a callable tool/function
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// ValidateArgs checks the parsed argument document against the declared
// parameters: required presence, JSON type, and enum membership.
func (t *Tool) ValidateArgs(args map[string]any) error {
	for _, param := range t.Parameters {
		value, ok := args[param.Name]
		if !ok {
			if param.Required {
				return fmt.Errorf("missing required parameter %q", param.Name)
			}
			continue
		}
		if err := checkType(param, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(param Parameter, value any) error {
	switch param.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q: expected string, got %T", param.Name, value)
		}
		if len(param.Enum) > 0 {
			for _, allowed := range param.Enum {
				if s == allowed {
					return nil
				}
			}
			return fmt.Errorf("parameter %q: value %q not in enum %v", param.Name, s, param.Enum)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("parameter %q: expected number, got %T", param.Name, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("parameter %q: expected integer, got %v", param.Name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q: expected boolean, got %T", param.Name, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("parameter %q: expected object, got %T", param.Name, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("parameter %q: expected array, got %T", param.Name, value)
		}
	default:
		return fmt.Errorf("parameter %q: unknown declared type %q", param.Name, param.Type)
	}
	return nil
}

// ParametersSchema returns the JSON schema object describing the tool's
// arguments, in the shape every provider wire format embeds.
func (t *Tool) ParametersSchema() map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0)

	for _, param := range t.Parameters {
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Registry manages a collection of tools
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex // Protects tools map
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}
