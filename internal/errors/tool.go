package errors

import (
	stderrors "errors"
	"fmt"
)

// Stable kind strings carried in tool error records fed back to the model
const (
	KindUnknownTool       = "UnknownToolError"
	KindToolExecution     = "ToolExecutionError"
	KindToolNormalization = "ToolCallNormalizationError"
	KindDuplicateTool     = "DuplicateToolError"
	KindInvalidDefinition = "InvalidToolDefinitionError"
)

// DuplicateToolError is raised when a tool name is registered twice
type DuplicateToolError struct {
	*ToolAgentError
	Tool string
}

// NewDuplicateToolError creates a new duplicate tool error
func NewDuplicateToolError(toolName string) *DuplicateToolError {
	return &DuplicateToolError{
		ToolAgentError: &ToolAgentError{
			Message:  fmt.Sprintf("tool '%s' is already registered", toolName),
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}

// InvalidToolDefinitionError is raised when a ToolDefinition cannot be registered
type InvalidToolDefinitionError struct {
	*ToolAgentError
	Tool string
}

// NewInvalidToolDefinitionError creates a new invalid definition error
func NewInvalidToolDefinitionError(toolName, reason string, cause error) *InvalidToolDefinitionError {
	return &InvalidToolDefinitionError{
		ToolAgentError: &ToolAgentError{
			Message:  fmt.Sprintf("invalid definition for tool '%s': %s", toolName, reason),
			Cause:    cause,
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}

// UnknownToolError is raised when a tool name is not in the registry
type UnknownToolError struct {
	*ToolAgentError
	Tool string
}

// NewUnknownToolError creates a new unknown tool error
func NewUnknownToolError(toolName string) *UnknownToolError {
	return &UnknownToolError{
		ToolAgentError: &ToolAgentError{
			Message:  fmt.Sprintf("tool '%s' is not registered", toolName),
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}

// ToolExecutionError is raised when a tool handler fails
type ToolExecutionError struct {
	*ToolAgentError
	Tool string
}

// NewToolExecutionError creates a new tool execution error
func NewToolExecutionError(toolName string, cause error) *ToolExecutionError {
	return &ToolExecutionError{
		ToolAgentError: &ToolAgentError{
			Message: fmt.Sprintf("tool '%s' execution failed", toolName),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Tool Execution",
				Component: toolName,
				Details: map[string]any{
					"tool": toolName,
				},
				Recoverable: true,
			},
			ExitCode: ExitToolError,
		},
		Tool: toolName,
	}
}

// ToolCallNormalizationError is attached to a single tool call whose vendor
// payload could not be decoded
type ToolCallNormalizationError struct {
	*ToolAgentError
	Provider string
	Tool     string
}

// NewToolCallNormalizationError creates a new normalization error
func NewToolCallNormalizationError(provider, toolName string, cause error) *ToolCallNormalizationError {
	return &ToolCallNormalizationError{
		ToolAgentError: &ToolAgentError{
			Message:  fmt.Sprintf("malformed %s arguments for tool '%s'", provider, toolName),
			Cause:    cause,
			ExitCode: ExitToolError,
		},
		Provider: provider,
		Tool:     toolName,
	}
}

// Kind returns the stable kind string for tool-layer errors, or "" for
// anything else
func Kind(err error) string {
	var (
		unknownErr   *UnknownToolError
		execErr      *ToolExecutionError
		normErr      *ToolCallNormalizationError
		duplicateErr *DuplicateToolError
		invalidErr   *InvalidToolDefinitionError
	)
	switch {
	case stderrors.As(err, &unknownErr):
		return KindUnknownTool
	case stderrors.As(err, &execErr):
		return KindToolExecution
	case stderrors.As(err, &normErr):
		return KindToolNormalization
	case stderrors.As(err, &duplicateErr):
		return KindDuplicateTool
	case stderrors.As(err, &invalidErr):
		return KindInvalidDefinition
	}
	return ""
}
