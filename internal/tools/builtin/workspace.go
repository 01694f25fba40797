// Package builtin provides filesystem tools scoped to one workspace
// directory. They are ordinary collaborators registered through the
// public tools.Registry surface.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/toolagent/internal/tools"
)

// MaxResultBytes caps the text a single tool call may return
const MaxResultBytes = 50000

// ignoredNames are directories and files never listed or searched
var ignoredNames = map[string]bool{
	".git": true, ".svn": true, ".hg": true,
	"node_modules": true, "vendor": true, ".venv": true, "venv": true, "__pycache__": true,
	"dist": true, "build": true, "target": true, "bin": true,
	".idea": true, ".vscode": true,
	"package-lock.json": true, "yarn.lock": true, "go.sum": true,
}

// binaryExtensions are skipped without sniffing their content
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".o": true, ".a": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".mp3": true, ".mp4": true, ".mov": true, ".wav": true,
	".zip": true, ".tar": true, ".gz": true, ".7z": true,
	".pdf": true, ".docx": true, ".xlsx": true,
	".woff": true, ".woff2": true, ".ttf": true,
	".db": true, ".sqlite": true, ".class": true, ".pyc": true, ".wasm": true,
}

// Workspace resolves model-supplied paths against a root directory and
// refuses paths that escape it
type Workspace struct {
	Root string
}

// NewWorkspace creates a workspace rooted at root
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Workspace{Root: abs}, nil
}

// Resolve maps a relative path to an absolute path inside the workspace.
// Symlinks are followed; a link whose target lies outside the root is
// refused like any other escaping path. Paths that do not exist yet are
// checked lexically.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		path = "."
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(w.Root, path)
	}
	full = filepath.Clean(full)

	if !w.contains(full) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}

	target, err := filepath.EvalSymlinks(full)
	switch {
	case err == nil:
		if !w.contains(target) {
			return "", fmt.Errorf("path %q resolves outside the workspace", path)
		}
	case !os.IsNotExist(err):
		return "", err
	}
	return full, nil
}

func (w *Workspace) contains(path string) bool {
	rel, err := filepath.Rel(w.Root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel returns path relative to the workspace root, slash separated
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Register adds read_file, list_files and search_files to reg
func Register(reg *tools.Registry, root string) error {
	ws, err := NewWorkspace(root)
	if err != nil {
		return err
	}
	for _, t := range builtins(ws) {
		if err := reg.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

// Handlers returns the built-in handlers keyed by tool name, for binding
// to definitions loaded from a catalog
func Handlers(root string) (map[string]tools.Handler, error) {
	ws, err := NewWorkspace(root)
	if err != nil {
		return nil, err
	}
	handlers := make(map[string]tools.Handler)
	for _, t := range builtins(ws) {
		handlers[t.Name()] = t.Execute
	}
	return handlers, nil
}

func builtins(ws *Workspace) []tools.Tool {
	return []tools.Tool{
		&ReadFileTool{ws: ws},
		&ListFilesTool{ws: ws},
		&SearchFilesTool{ws: ws},
	}
}

func isIgnored(name string) bool {
	return ignoredNames[name] || strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".min.js")
}

// isBinary checks the extension first, then sniffs the first 512 bytes
func isBinary(path string) bool {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return false
	}

	nonText := 0
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonText++
		}
	}
	// More than 30% control characters
	return nonText > n*3/10
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}
