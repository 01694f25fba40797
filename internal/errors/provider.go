package errors

import (
	stderrors "errors"
	"fmt"
)

// ProviderRequestError is raised when a vendor call fails at the transport,
// auth or API level. Adapters never retry it.
type ProviderRequestError struct {
	*ToolAgentError
	Provider   string
	Model      string
	StatusCode int // 0 when no HTTP response was received
}

// NewProviderRequestError creates a new provider request error
func NewProviderRequestError(provider, model string, statusCode int, cause error) *ProviderRequestError {
	message := fmt.Sprintf("request to %s (model %s) failed", provider, model)
	if statusCode != 0 {
		message = fmt.Sprintf("request to %s (model %s) failed with status %d", provider, model, statusCode)
	}

	return &ProviderRequestError{
		ToolAgentError: &ToolAgentError{
			Message: message,
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "LLM API Call",
				Component: provider,
				Details: map[string]any{
					"provider": provider,
					"model":    model,
					"status":   statusCode,
				},
				Suggestions: []string{
					"Check your internet connection",
					"Check if the API key is valid",
					"Check if the model name is correct",
				},
			},
			ExitCode: ExitProviderError,
		},
		Provider:   provider,
		Model:      model,
		StatusCode: statusCode,
	}
}

// IsProviderRequestError reports whether err wraps a ProviderRequestError
func IsProviderRequestError(err error) bool {
	var reqErr *ProviderRequestError
	return stderrors.As(err, &reqErr)
}
