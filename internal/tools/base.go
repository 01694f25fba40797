package tools

import (
	"context"

	"github.com/user/toolagent/internal/llmtypes"
)

// Handler is the host function behind a registered tool. Arguments are the
// decoded JSON object supplied by the model.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is implemented by collaborators that carry their own definition
type Tool interface {
	// Name returns the tool name
	Name() string

	// Description returns a description of what the tool does
	Description() string

	// Parameters returns the JSON schema for the tool's parameters
	Parameters() map[string]any

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, params map[string]any) (any, error)
}

// DefinitionOf builds the ToolDefinition a Tool declares about itself
func DefinitionOf(t Tool) llmtypes.ToolDefinition {
	return llmtypes.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}
