package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llmtypes"
)

// Vendors accept letters, digits, underscores and dashes, up to 64 characters
var validToolName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type entry struct {
	def     llmtypes.ToolDefinition
	handler Handler
	schema  *jsonschema.Schema
}

// Registry maps tool names to handlers and their declared definitions.
// Registering a name twice fails with DuplicateToolError. Registration is
// expected at startup; afterwards the registry may be shared by any number
// of agents.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register adds a tool. The parameter schema is compiled immediately so a
// broken schema is reported here rather than on the first model call.
func (r *Registry) Register(def llmtypes.ToolDefinition, handler Handler) error {
	if !validToolName.MatchString(def.Name) {
		return errors.NewInvalidToolDefinitionError(def.Name, "name must match "+validToolName.String(), nil)
	}
	if handler == nil {
		return errors.NewInvalidToolDefinitionError(def.Name, "handler is nil", nil)
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if t, ok := def.Parameters["type"]; ok && t != "object" {
		return errors.NewInvalidToolDefinitionError(def.Name, fmt.Sprintf("parameters type must be \"object\", got %v", t), nil)
	}

	schema, err := compileSchema(def.Name, def.Parameters)
	if err != nil {
		return errors.NewInvalidToolDefinitionError(def.Name, "parameters are not a valid JSON schema", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.Name]; exists {
		return errors.NewDuplicateToolError(def.Name)
	}
	r.entries[def.Name] = &entry{def: def, handler: handler, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// RegisterTool registers a Tool using its own definition
func (r *Registry) RegisterTool(t Tool) error {
	return r.Register(DefinitionOf(t), t.Execute)
}

// MustRegister is like Register but panics on error. Meant for static setup.
func (r *Registry) MustRegister(def llmtypes.ToolDefinition, handler Handler) {
	if err := r.Register(def, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler and definition registered under name
func (r *Registry) Get(name string) (Handler, llmtypes.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, llmtypes.ToolDefinition{}, errors.NewUnknownToolError(name)
	}
	return e.handler, e.def, nil
}

// ListDefinitions returns every definition in registration order
func (r *Registry) ListDefinitions() []llmtypes.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llmtypes.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Names returns the registered tool names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ExportSchema renders every registered definition in the given format
func (r *Registry) ExportSchema(format Format) ([]map[string]any, error) {
	return Export(format, r.ListDefinitions())
}

// validate checks args against the compiled parameter schema of name
func (r *Registry) validate(name string, args map[string]any) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return errors.NewUnknownToolError(name)
	}

	doc, err := toJSONValue(args)
	if err != nil {
		return err
	}
	return e.schema.Validate(doc)
}

// compileSchema compiles a declared parameter schema. The map is not mutated.
func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	doc, err := toJSONValue(params)
	if err != nil {
		return nil, err
	}

	url := "https://tools.local/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// toJSONValue round-trips v through JSON so the validator sees the same
// value shapes it would see for a decoded document
func toJSONValue(v any) (any, error) {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
