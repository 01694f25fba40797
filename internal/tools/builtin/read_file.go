package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// ReadFileTool reads a window of lines from a text file
type ReadFileTool struct {
	ws *Workspace
}

func (t *ReadFileTool) Name() string {
	return "read_file"
}

func (t *ReadFileTool) Description() string {
	return "Read a text file from the workspace. Reads the first 200 lines unless line_number and line_count are given."
}

func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{
				"type":        "string",
				"description": "Path of the file, relative to the workspace root",
			},
			"line_number": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "First line to read (1-indexed). Default: 1",
			},
			"line_count": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Number of lines to read. Default: 200",
			},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	filePath, _ := params["file_path"].(string)
	path, err := t.ws.Resolve(filePath)
	if err != nil {
		return nil, err
	}
	if isBinary(path) {
		return nil, fmt.Errorf("%s is a binary file", filePath)
	}

	start := intArg(params, "line_number", 1)
	count := intArg(params, "line_count", 200)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	size := 0
	truncated := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; scanner.Scan() && line < start+count; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if line < start {
			continue
		}
		if size+len(scanner.Text()) > MaxResultBytes {
			truncated = true
			break
		}
		size += len(scanner.Text())
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	result := map[string]any{
		"file":       t.ws.Rel(path),
		"lines":      lines,
		"start_line": start,
		"end_line":   start + len(lines) - 1,
	}
	if truncated {
		result["truncated"] = true
	}
	return result, nil
}
