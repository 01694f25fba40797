package testing

import (
	"context"
	"fmt"
	"testing"

	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/tools"
)

// AddDefinition declares add(a, b)
func AddDefinition() llmtypes.ToolDefinition {
	return llmtypes.ToolDefinition{
		Name:        "add",
		Description: "Add two integers",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "integer"},
				"b": map[string]any{"type": "integer"},
			},
			"required": []any{"a", "b"},
		},
	}
}

// AddHandler sums a and b. JSON numbers decode as float64.
func AddHandler(_ context.Context, args map[string]any) (any, error) {
	a, okA := args["a"].(float64)
	b, okB := args["b"].(float64)
	if !okA || !okB {
		return nil, fmt.Errorf("a and b must be numbers")
	}
	return int(a + b), nil
}

// EchoDefinition declares echo(text)
func EchoDefinition() llmtypes.ToolDefinition {
	return llmtypes.ToolDefinition{
		Name:        "echo",
		Description: "Return the input text",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
	}
}

// EchoHandler returns args["text"]
func EchoHandler(_ context.Context, args map[string]any) (any, error) {
	return args["text"], nil
}

// FailDefinition declares a tool whose handler always fails
func FailDefinition() llmtypes.ToolDefinition {
	return llmtypes.ToolDefinition{
		Name:        "fail",
		Description: "Always fails",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

// FailHandler always returns an error
func FailHandler(context.Context, map[string]any) (any, error) {
	return nil, fmt.Errorf("tool is broken")
}

// NewToolRegistry returns a registry with add, echo and fail registered
func NewToolRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, tool := range []struct {
		def     llmtypes.ToolDefinition
		handler tools.Handler
	}{
		{AddDefinition(), AddHandler},
		{EchoDefinition(), EchoHandler},
		{FailDefinition(), FailHandler},
	} {
		if err := reg.Register(tool.def, tool.handler); err != nil {
			t.Fatalf("register %s: %v", tool.def.Name, err)
		}
	}
	return reg
}
