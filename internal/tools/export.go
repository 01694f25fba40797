package tools

import (
	"fmt"
	"strings"

	"github.com/user/toolagent/internal/llmtypes"
)

// Format names a vendor tool-catalog shape
type Format string

const (
	// FormatNativeFunctions is {type: "function", function: {name, description, parameters}}
	FormatNativeFunctions Format = "native-functions"
	// FormatAnthropicTools is {name, description, input_schema}
	FormatAnthropicTools Format = "anthropic-tools"
	// FormatFunctionDeclarations is {name, description, parameters}
	FormatFunctionDeclarations Format = "generic-function-declarations"
)

// Formats lists every supported export format
var Formats = []Format{FormatNativeFunctions, FormatAnthropicTools, FormatFunctionDeclarations}

// ParseFormat resolves a format name
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown schema format %q", s)
}

// FormatForProvider returns the catalog shape a vendor expects.
// OpenAI-compatible vendors share the native exporter.
func FormatForProvider(provider string) Format {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return FormatAnthropicTools
	case "gemini", "google":
		return FormatFunctionDeclarations
	default:
		return FormatNativeFunctions
	}
}

// Export maps definitions into the given format, preserving their order.
// Nothing is added to or dropped from a definition.
func Export(format Format, defs []llmtypes.ToolDefinition) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		switch format {
		case FormatNativeFunctions:
			out = append(out, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        def.Name,
					"description": def.Description,
					"parameters":  params,
				},
			})
		case FormatAnthropicTools:
			out = append(out, map[string]any{
				"name":         def.Name,
				"description":  def.Description,
				"input_schema": params,
			})
		case FormatFunctionDeclarations:
			out = append(out, map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  params,
			})
		default:
			return nil, fmt.Errorf("unknown schema format %q", format)
		}
	}
	return out, nil
}

// ExportAll renders the definitions in every format, keyed by format name
func ExportAll(defs []llmtypes.ToolDefinition) map[Format][]map[string]any {
	all := make(map[Format][]map[string]any, len(Formats))
	for _, f := range Formats {
		all[f], _ = Export(f, defs)
	}
	return all
}
