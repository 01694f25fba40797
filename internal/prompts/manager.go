package prompts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	textTemplate "text/template"

	"gopkg.in/yaml.v3"
)

// DefaultName is the prompt used when none is selected
const DefaultName = "default"

// Vars are the values available to system prompt templates
type Vars struct {
	Provider  string
	Model     string
	Workspace string
	Tools     []string
}

// Manager holds named system prompt templates
type Manager struct {
	prompts map[string]string
	sources map[string]string // which file provided each prompt
}

// NewManagerWithOverrides loads prompts from systemDir, then lets projectDir
// override them. Missing directories are skipped. defaultPrompt is
// registered as DefaultName unless a file provides one.
func NewManagerWithOverrides(defaultPrompt, systemDir, projectDir string) (*Manager, error) {
	pm := NewManagerFromMap(map[string]string{DefaultName: defaultPrompt})
	pm.sources[DefaultName] = "builtin"

	for _, dir := range []struct{ path, source string }{
		{systemDir, "system"},
		{projectDir, "project"},
	} {
		if dir.path == "" {
			continue
		}
		if _, err := os.Stat(dir.path); err != nil {
			continue
		}
		if err := pm.loadDirectory(dir.path, dir.source); err != nil {
			return nil, fmt.Errorf("failed to load %s prompts: %w", dir.source, err)
		}
	}
	return pm, nil
}

// NewManagerFromMap creates a prompt manager from a map
func NewManagerFromMap(prompts map[string]string) *Manager {
	pm := &Manager{
		prompts: make(map[string]string, len(prompts)),
		sources: make(map[string]string, len(prompts)),
	}
	for key, value := range prompts {
		pm.prompts[key] = value
		pm.sources[key] = "map"
	}
	return pm
}

// loadDirectory loads every YAML file of name: template pairs in dir
func (pm *Manager) loadDirectory(dir, source string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filePath, err)
		}

		var prompts map[string]string
		if err := yaml.Unmarshal(data, &prompts); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filePath, err)
		}

		// Later loads override earlier
		for key, value := range prompts {
			pm.prompts[key] = value
			pm.sources[key] = source + ":" + entry.Name()
		}
	}
	return nil
}

// Get returns a raw prompt by name
func (pm *Manager) Get(name string) (string, error) {
	prompt, ok := pm.prompts[name]
	if !ok {
		return "", fmt.Errorf("prompt '%s' not found (available: %s)", name, strings.Join(pm.Names(), ", "))
	}
	return prompt, nil
}

// Render renders a prompt template. Unknown fields are an error.
func (pm *Manager) Render(name string, vars Vars) (string, error) {
	promptTemplate, err := pm.Get(name)
	if err != nil {
		return "", err
	}

	tmpl, err := textTemplate.New(name).
		Option("missingkey=error").
		Funcs(textTemplate.FuncMap{"join": strings.Join}).
		Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Names returns the prompt names, sorted
func (pm *Manager) Names() []string {
	names := make([]string, 0, len(pm.prompts))
	for name := range pm.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSource returns which file provided a prompt
func (pm *Manager) GetSource(name string) string {
	if source, ok := pm.sources[name]; ok {
		return source
	}
	return "unknown"
}

// ListOverrides returns the prompts provided by the project directory
func (pm *Manager) ListOverrides() []string {
	var overrides []string
	for key, source := range pm.sources {
		if strings.HasPrefix(source, "project:") {
			overrides = append(overrides, key)
		}
	}
	sort.Strings(overrides)
	return overrides
}
