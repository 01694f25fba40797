package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/user/toolagent/internal/errors"
)

const (
	DefaultProvider            = "openai"
	DefaultSystemPrompt        = "You are a helpful assistant. Use tools when necessary."
	DefaultMaxIterations       = 5
	DefaultPartialAnswerPrefix = "Max tool-call iterations reached. Partial answer: "
	DefaultMaxTokens           = 4096
	DefaultMaxToolResultBytes  = 50000
)

// vendorEnv lists the conventional environment variables of each vendor
type vendorEnv struct {
	apiKey  []string
	baseURL []string
}

var knownProviders = map[string]vendorEnv{
	"openai":     {apiKey: []string{"OPENAI_API_KEY"}, baseURL: []string{"OPENAI_BASE_URL"}},
	"anthropic":  {apiKey: []string{"ANTHROPIC_API_KEY"}, baseURL: []string{"ANTHROPIC_BASE_URL"}},
	"gemini":     {apiKey: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, baseURL: []string{"GEMINI_BASE_URL"}},
	"openrouter": {apiKey: []string{"OPENROUTER_API_KEY"}, baseURL: []string{"OPENROUTER_BASE_URL"}},
	"groq":       {apiKey: []string{"GROQ_API_KEY"}, baseURL: []string{"GROQ_BASE_URL"}},
}

func missingCredential(provider string) error {
	env, ok := knownProviders[provider]
	if !ok {
		return errors.NewMissingCredentialError(provider)
	}
	return errors.NewMissingCredentialError(provider, env.apiKey...)
}

// Loader handles loading configuration from multiple sources
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TOOLAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindVendorEnv(v)
	// No default: an unset temperature is left to the vendor
	_ = v.BindEnv("agent.temperature")

	return &Loader{v: v}
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("model", "") // empty selects the provider's default model

	v.SetDefault("agent.system_prompt", DefaultSystemPrompt)
	v.SetDefault("agent.max_iterations", DefaultMaxIterations)
	v.SetDefault("agent.partial_answer_prefix", DefaultPartialAnswerPrefix)
	v.SetDefault("agent.tool_choice", "auto")
	v.SetDefault("agent.max_tokens", DefaultMaxTokens)
	v.SetDefault("agent.max_tool_result_bytes", DefaultMaxToolResultBytes)

	v.SetDefault("logging.log_dir", ".toolagent/logs")
	v.SetDefault("logging.file_level", "info")
	v.SetDefault("logging.console_level", "warn")
	v.SetDefault("logging.console", true)

	for name := range knownProviders {
		v.SetDefault("providers."+name+".timeout", 180)
		v.SetDefault("providers."+name+".disable_streaming", false)
	}
}

// bindVendorEnv maps the vendors' own variable names onto provider keys.
// The prefixed TOOLAGENT_ form stays available as the last fallback.
func bindVendorEnv(v *viper.Viper) {
	for name, env := range knownProviders {
		apiKey := "providers." + name + ".api_key"
		_ = v.BindEnv(append([]string{apiKey}, append(env.apiKey, envName(apiKey))...)...)

		baseURL := "providers." + name + ".base_url"
		_ = v.BindEnv(append([]string{baseURL}, append(env.baseURL, envName(baseURL))...)...)
	}
}

func envName(key string) string {
	return "TOOLAGENT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration with precedence
// CLI overrides > environment > explicit file > ./.toolagent/config.yaml > ~/.toolagent.yaml > defaults
func (l *Loader) Load(configFile string, overrides map[string]any) (*Config, error) {
	if err := l.loadGlobalConfig(); err != nil {
		return nil, err
	}

	if err := l.mergeFile(filepath.Join(".toolagent", "config.yaml"), false); err != nil {
		return nil, err
	}

	if configFile != "" {
		if err := l.mergeFile(configFile, true); err != nil {
			return nil, err
		}
	}

	l.applyCLIOverrides(overrides)

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigFileError(l.v.ConfigFileUsed(), fmt.Errorf("failed to decode config: %w", err))
	}
	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is a shortcut for NewLoader().Load
func Load(configFile string, overrides map[string]any) (*Config, error) {
	return NewLoader().Load(configFile, overrides)
}

// loadGlobalConfig loads configuration from ~/.toolagent.yaml
func (l *Loader) loadGlobalConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil // Not a fatal error
	}
	return l.mergeFile(filepath.Join(homeDir, ".toolagent.yaml"), false)
}

func (l *Loader) mergeFile(path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if required {
			return errors.NewConfigFileError(path, err)
		}
		return nil // File doesn't exist, skip
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return errors.NewConfigFileError(path, err)
	}
	return nil
}

// applyCLIOverrides applies CLI flag overrides
func (l *Loader) applyCLIOverrides(overrides map[string]any) {
	for key, value := range overrides {
		// Only set if value is not nil
		if value != nil {
			l.v.Set(key, value)
		}
	}
}

// normalize lower-cases provider names so lookups are case-insensitive
func normalize(cfg *Config) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		providers[strings.ToLower(name)] = pc
	}
	cfg.Providers = providers
}

// Validate checks values that would otherwise fail later at call time
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations < 1 {
		return errors.NewInvalidValueError("agent.max_iterations", cfg.Agent.MaxIterations, "must be at least 1")
	}
	if cfg.Agent.MaxTokens < 0 {
		return errors.NewInvalidValueError("agent.max_tokens", cfg.Agent.MaxTokens, "must not be negative")
	}
	if t := cfg.Agent.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errors.NewInvalidValueError("agent.temperature", *t, "must be between 0 and 2")
	}
	if cfg.Agent.MaxToolResultBytes < 0 {
		return errors.NewInvalidValueError("agent.max_tool_result_bytes", cfg.Agent.MaxToolResultBytes, "must not be negative")
	}
	return nil
}
