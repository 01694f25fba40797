package llm

import (
	"sort"
	"strings"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/logging"
)

// DefaultModels is used when neither the caller nor the configuration
// names a model for the provider
var DefaultModels = map[string]string{
	"openai":     "gpt-4o",
	"anthropic":  "claude-sonnet-4-5",
	"gemini":     "gemini-2.0-flash",
	"openrouter": "openai/gpt-4o",
	"groq":       "llama-3.3-70b-versatile",
}

var aliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
}

// Factory creates provider adapters from the process configuration
type Factory struct {
	cfg    *config.Config
	logger *logging.Logger
}

// NewFactory creates a new provider factory
func NewFactory(cfg *config.Config, logger *logging.Logger) *Factory {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Factory{cfg: cfg, logger: logger.Named("llm")}
}

// SupportedProviders returns the canonical provider names, sorted
func SupportedProviders() []string {
	names := make([]string, 0, len(DefaultModels))
	for name := range DefaultModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanonicalName resolves a case-insensitive provider name or alias
func CanonicalName(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[n]; ok {
		n = alias
	}
	_, ok := DefaultModels[n]
	return n, ok
}

// Create builds the adapter for name. Only the credential lookup happens
// here; no request is sent until Chat.
func (f *Factory) Create(name, model string) (Provider, error) {
	canonical, ok := CanonicalName(name)
	if !ok {
		return nil, errors.NewUnsupportedProviderError(name, SupportedProviders())
	}

	pc, err := f.cfg.Credentials(canonical)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = f.defaultModel(canonical)
	}

	f.logger.Debug("Creating provider",
		logging.Provider(canonical),
		logging.Model(model),
	)

	switch canonical {
	case "anthropic":
		return NewAnthropicProvider(model, pc, f.logger), nil
	case "gemini":
		return NewGeminiProvider(model, pc, f.logger), nil
	case "openrouter":
		return NewOpenAICompatibleProvider(canonical, OpenRouterBaseURL, model, pc, f.logger), nil
	case "groq":
		return NewOpenAICompatibleProvider(canonical, GroqBaseURL, model, pc, f.logger), nil
	default:
		return NewOpenAIProvider(model, pc, f.logger), nil
	}
}

// defaultModel prefers the configured model when it belongs to the
// configured default provider
func (f *Factory) defaultModel(provider string) string {
	if f.cfg.Model != "" {
		if configured, ok := CanonicalName(f.cfg.Provider); ok && configured == provider {
			return f.cfg.Model
		}
	}
	return DefaultModels[provider]
}
