package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// MaxFilesToList is the maximum number of files one call returns
const MaxFilesToList = 500

// ListFilesTool lists text files under a directory, recursively
type ListFilesTool struct {
	ws *Workspace
}

func (t *ListFilesTool) Name() string {
	return "list_files"
}

func (t *ListFilesTool) Description() string {
	return "List text files under a workspace directory recursively. Skips binaries, dependency and build directories. Returns at most 500 paths."
}

func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directory": map[string]any{
				"type":        "string",
				"description": "Directory relative to the workspace root. Default: the root",
			},
		},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	dir, _ := params["directory"].(string)
	root, err := t.ws.Resolve(dir)
	if err != nil {
		return nil, err
	}

	files := []string{}
	skipped := 0
	truncated := false

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != root && isIgnored(d.Name()) {
			skipped++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if isBinary(path) {
			skipped++
			return nil
		}
		if len(files) >= MaxFilesToList {
			truncated = true
			return filepath.SkipAll
		}
		files = append(files, t.ws.Rel(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	result := map[string]any{
		"files":   files,
		"count":   len(files),
		"skipped": skipped,
	}
	if truncated {
		result["truncated"] = true
	}
	return result, nil
}
