package config

import (
	"strings"
	"time"
)

// Config holds the process-wide configuration. It is read-only once loaded.
type Config struct {
	Provider  string                    `mapstructure:"provider"` // default provider name
	Model     string                    `mapstructure:"model"`    // empty uses the provider's default
	Agent     AgentConfig               `mapstructure:"agent"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// AgentConfig holds the agent loop settings
type AgentConfig struct {
	SystemPrompt        string   `mapstructure:"system_prompt"`
	MaxIterations       int      `mapstructure:"max_iterations"`
	PartialAnswerPrefix string   `mapstructure:"partial_answer_prefix"`
	ToolChoice          string   `mapstructure:"tool_choice"` // auto, none, required or a tool name
	MaxTokens           int      `mapstructure:"max_tokens"`
	Temperature         *float64 `mapstructure:"temperature"` // nil leaves the vendor default
	MaxToolResultBytes  int      `mapstructure:"max_tool_result_bytes"`
}

// ProviderConfig holds per-vendor credentials and transport settings
type ProviderConfig struct {
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"` // Optional override
	Timeout          int    `mapstructure:"timeout"`  // Timeout in seconds
	DisableStreaming bool   `mapstructure:"disable_streaming"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	LogDir       string `mapstructure:"log_dir"`
	FileLevel    string `mapstructure:"file_level"`    // debug, info, warn, error
	ConsoleLevel string `mapstructure:"console_level"` // debug, info, warn, error
	Console      bool   `mapstructure:"console"`
}

// GetTimeout returns the timeout as a time.Duration
func (c ProviderConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 180 * time.Second // Default timeout
	}
	return time.Duration(c.Timeout) * time.Second
}

// Credentials returns the configuration for a canonical provider name.
// A missing API key is a configuration error surfaced here, at
// construction time, rather than on the first request.
func (c *Config) Credentials(provider string) (ProviderConfig, error) {
	name := strings.ToLower(provider)
	pc := c.Providers[name]
	if pc.APIKey == "" {
		return pc, missingCredential(name)
	}
	return pc, nil
}
