package tools

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/toolagent/internal/llmtypes"
)

// catalogFile is the YAML layout of a tool definition catalog:
//
//	tools:
//	  - name: add
//	    description: Add two integers
//	    parameters:
//	      type: object
//	      properties:
//	        a: {type: integer}
//	        b: {type: integer}
//	      required: [a, b]
type catalogFile struct {
	Tools []llmtypes.ToolDefinition `yaml:"tools"`
}

// LoadDefinitions decodes a YAML tool catalog. Handlers are bound separately
// by whoever owns the implementations.
func LoadDefinitions(r io.Reader) ([]llmtypes.ToolDefinition, error) {
	var catalog catalogFile
	if err := yaml.NewDecoder(r).Decode(&catalog); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode tool catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Tools))
	for i, def := range catalog.Tools {
		if def.Name == "" {
			return nil, fmt.Errorf("tool catalog entry %d has no name", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("tool catalog declares %q twice", def.Name)
		}
		seen[def.Name] = true
	}
	return catalog.Tools, nil
}

// LoadDefinitionsFile reads a YAML tool catalog from disk
func LoadDefinitionsFile(path string) ([]llmtypes.ToolDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadDefinitions(f)
}

// RegisterCatalog registers each definition with the handler bound to its
// name. Definitions without a handler are an error.
func (r *Registry) RegisterCatalog(defs []llmtypes.ToolDefinition, handlers map[string]Handler) error {
	for _, def := range defs {
		h, ok := handlers[def.Name]
		if !ok {
			return fmt.Errorf("no handler bound for cataloged tool %q", def.Name)
		}
		if err := r.Register(def, h); err != nil {
			return err
		}
	}
	return nil
}
