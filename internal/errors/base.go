package errors

import (
	"fmt"
)

// ToolAgentError is the base error type for all application errors
type ToolAgentError struct {
	Message  string        // Human-readable error message
	Context  *ErrorContext // Rich error context
	Cause    error         // Underlying error (for wrapping)
	ExitCode ExitCode      // Exit code for CLI
}

// Error returns the error message with cause if present
func (e *ToolAgentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *ToolAgentError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message with context
func (e *ToolAgentError) GetUserMessage() string {
	msg := fmt.Sprintf("ERROR: %s", e.Message)

	if e.Cause != nil {
		msg += fmt.Sprintf("\nCause: %v", e.Cause)
	}

	if e.Context != nil {
		msg += e.Context.Format()
	}

	return msg
}

// GetExitCode returns the CLI exit code
func (e *ToolAgentError) GetExitCode() ExitCode {
	return e.ExitCode
}

// NewError creates a new ToolAgentError with the given message and exit code
func NewError(message string, exitCode ExitCode) *ToolAgentError {
	return &ToolAgentError{
		Message:  message,
		ExitCode: exitCode,
	}
}

// WrapError wraps an existing error with additional context
func WrapError(cause error, message string, exitCode ExitCode) *ToolAgentError {
	return &ToolAgentError{
		Message:  message,
		Cause:    cause,
		ExitCode: exitCode,
	}
}
