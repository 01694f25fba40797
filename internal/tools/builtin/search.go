package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SearchFilesTool finds lines containing a literal string
type SearchFilesTool struct {
	ws *Workspace
}

func (t *SearchFilesTool) Name() string {
	return "search_files"
}

func (t *SearchFilesTool) Description() string {
	return "Search workspace text files for a case-sensitive literal string. Returns path:line: text for every match."
}

func (t *SearchFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Literal text to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory relative to the workspace root to limit the search",
			},
			"extensions": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Only search files with these extensions, e.g. [\".go\", \".md\"]",
			},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern must be a non-empty string")
	}

	dir, _ := params["path"].(string)
	root, err := t.ws.Resolve(dir)
	if err != nil {
		return nil, err
	}

	var exts map[string]bool
	if list, ok := params["extensions"].([]any); ok && len(list) > 0 {
		exts = make(map[string]bool, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				if !strings.HasPrefix(s, ".") {
					s = "." + s
				}
				exts[s] = true
			}
		}
	}

	var matches []string
	size := 0
	truncated := false

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != root && isIgnored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// Symlinked files are skipped; their targets may lie outside the root
		if !d.Type().IsRegular() || (exts != nil && !exts[filepath.Ext(path)]) || isBinary(path) {
			return nil
		}

		found, err := searchFile(path, t.ws.Rel(path), pattern)
		if err != nil {
			return nil
		}
		for _, m := range found {
			if size+len(m) > MaxResultBytes {
				truncated = true
				return filepath.SkipAll
			}
			size += len(m)
			matches = append(matches, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}
	out := strings.Join(matches, "\n")
	if truncated {
		out += "\n[results truncated]"
	}
	return out, nil
}

func searchFile(path, rel, pattern string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var found []string
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		if strings.Contains(scanner.Text(), pattern) {
			found = append(found, fmt.Sprintf("%s:%d: %s", rel, line, strings.TrimSpace(scanner.Text())))
		}
	}
	return found, scanner.Err()
}
