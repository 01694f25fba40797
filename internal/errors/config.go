package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ConfigReason classifies a ConfigurationError
type ConfigReason string

const (
	ReasonMissingCredential   ConfigReason = "missing_credential"
	ReasonUnsupportedProvider ConfigReason = "unsupported_provider"
	ReasonInvalidValue        ConfigReason = "invalid_value"
	ReasonConfigFile          ConfigReason = "config_file"
)

// ConfigurationError is raised when configuration is invalid or missing.
// It is fatal and surfaces at construction time, never at call time.
type ConfigurationError struct {
	*ToolAgentError
	Reason ConfigReason
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{
		ToolAgentError: &ToolAgentError{
			Message:  message,
			ExitCode: ExitConfigError,
		},
		Reason: ReasonInvalidValue,
	}
}

// NewMissingCredentialError reports a vendor whose API key is not configured
func NewMissingCredentialError(provider string, envVars ...string) *ConfigurationError {
	suggestions := make([]string, 0, len(envVars)+1)
	for _, envVar := range envVars {
		suggestions = append(suggestions, fmt.Sprintf("Export the variable: export %s='your-key'", envVar))
	}
	suggestions = append(suggestions, fmt.Sprintf("Add providers.%s.api_key to .toolagent/config.yaml", provider))

	return &ConfigurationError{
		ToolAgentError: &ToolAgentError{
			Message: fmt.Sprintf("No API key configured for provider '%s'", provider),
			Context: &ErrorContext{
				Operation: "Credential lookup",
				Component: "Configuration",
				Details: map[string]any{
					"provider": provider,
					"env":      strings.Join(envVars, ", "),
				},
				Suggestions: suggestions,
			},
			ExitCode: ExitConfigError,
		},
		Reason: ReasonMissingCredential,
	}
}

// NewUnsupportedProviderError reports a provider name the factory does not know
func NewUnsupportedProviderError(name string, supported []string) *ConfigurationError {
	return &ConfigurationError{
		ToolAgentError: &ToolAgentError{
			Message: fmt.Sprintf("unsupported provider: %q (supported: %s)", name, strings.Join(supported, ", ")),
			Context: &ErrorContext{
				Operation: "Creating provider",
				Component: "ProviderFactory",
				Details: map[string]any{
					"provider": name,
				},
			},
			ExitCode: ExitConfigError,
		},
		Reason: ReasonUnsupportedProvider,
	}
}

// NewInvalidValueError reports a configuration key holding an unusable value
func NewInvalidValueError(key string, value any, reason string) *ConfigurationError {
	return &ConfigurationError{
		ToolAgentError: &ToolAgentError{
			Message: fmt.Sprintf("Configuration key '%s' has an invalid value", key),
			Context: &ErrorContext{
				Operation: "Validating configuration",
				Component: "Configuration",
				Details: map[string]any{
					"key":    key,
					"value":  value,
					"reason": reason,
				},
			},
			ExitCode: ExitConfigError,
		},
		Reason: ReasonInvalidValue,
	}
}

// NewConfigFileError is raised when a configuration file cannot be read or parsed
func NewConfigFileError(filePath string, cause error) *ConfigurationError {
	return &ConfigurationError{
		ToolAgentError: &ToolAgentError{
			Message: fmt.Sprintf("Failed to load configuration file: %s", filePath),
			Cause:   cause,
			Context: &ErrorContext{
				Operation: "Loading configuration",
				Component: "Config File",
				Details: map[string]any{
					"file_path": filePath,
				},
				Suggestions: []string{
					"Check that the file exists and is readable",
					"Validate YAML syntax",
				},
			},
			ExitCode: ExitConfigError,
		},
		Reason: ReasonConfigFile,
	}
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return stderrors.As(err, &cfgErr)
}

// IsUnsupportedProvider reports whether err is an unknown provider name
func IsUnsupportedProvider(err error) bool {
	return hasReason(err, ReasonUnsupportedProvider)
}

// IsMissingCredential reports whether err is a missing API key
func IsMissingCredential(err error) bool {
	return hasReason(err, ReasonMissingCredential)
}

func hasReason(err error, reason ConfigReason) bool {
	var cfgErr *ConfigurationError
	if !stderrors.As(err, &cfgErr) {
		return false
	}
	return cfgErr.Reason == reason
}
