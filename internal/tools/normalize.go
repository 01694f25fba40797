package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llmtypes"
)

// Normalize extracts tool invocations from a vendor payload, in the order the
// model listed them. Unknown vendors and payloads without tool calls yield an
// empty result. A call whose arguments cannot be decoded carries Err and an
// empty argument map; its siblings are unaffected.
//
// For OpenAI-compatible vendors raw may be a full completion, a single
// message, or any object with a top-level tool_calls array.
func Normalize(vendor string, raw []byte) []llmtypes.NormalizedToolCall {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []llmtypes.NormalizedToolCall{}
	}

	var calls []llmtypes.NormalizedToolCall
	switch strings.ToLower(vendor) {
	case "openai", "openrouter", "groq":
		calls = normalizeOpenAI(strings.ToLower(vendor), raw)
	case "anthropic", "claude":
		calls = normalizeAnthropic(raw)
	case "gemini", "google":
		calls = normalizeGemini(raw)
	}

	if calls == nil {
		return []llmtypes.NormalizedToolCall{}
	}
	return calls
}

type openAIFunctionCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type openAIToolCallHolder struct {
	ToolCalls []json.RawMessage `json:"tool_calls"`
	Message   *struct {
		ToolCalls []json.RawMessage `json:"tool_calls"`
	} `json:"message"`
	Choices []struct {
		Message struct {
			ToolCalls []json.RawMessage `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func normalizeOpenAI(vendor string, raw []byte) []llmtypes.NormalizedToolCall {
	var holder openAIToolCallHolder
	if err := json.Unmarshal(raw, &holder); err != nil {
		return nil
	}

	entries := holder.ToolCalls
	switch {
	case len(entries) > 0:
	case holder.Message != nil && len(holder.Message.ToolCalls) > 0:
		entries = holder.Message.ToolCalls
	case len(holder.Choices) > 0:
		entries = holder.Choices[0].Message.ToolCalls
	}

	calls := make([]llmtypes.NormalizedToolCall, 0, len(entries))
	for _, entryRaw := range entries {
		var tc openAIFunctionCall
		call := llmtypes.NormalizedToolCall{Raw: entryRaw, Arguments: map[string]any{}}
		if err := json.Unmarshal(entryRaw, &tc); err != nil {
			call.Err = errors.NewToolCallNormalizationError(vendor, "", err)
			calls = append(calls, call)
			continue
		}

		call.ID = tc.ID
		call.ToolName = tc.Function.Name
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			call.Err = errors.NewToolCallNormalizationError(vendor, tc.Function.Name, err)
		} else {
			call.Arguments = args
		}
		calls = append(calls, call)
	}
	return calls
}

// decodeArguments accepts the JSON-encoded argument string the OpenAI
// protocol specifies, and also an inline object some compatible servers send.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, err
		}
		if strings.TrimSpace(encoded) == "" {
			return map[string]any{}, nil
		}
		raw = json.RawMessage(encoded)
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

type anthropicBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func normalizeAnthropic(raw []byte) []llmtypes.NormalizedToolCall {
	var resp struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}

	var calls []llmtypes.NormalizedToolCall
	for _, blockRaw := range resp.Content {
		var block anthropicBlock
		if err := json.Unmarshal(blockRaw, &block); err != nil || block.Type != "tool_use" {
			continue
		}

		call := llmtypes.NormalizedToolCall{
			ID:        block.ID,
			ToolName:  block.Name,
			Arguments: map[string]any{},
			Raw:       blockRaw,
		}
		if len(block.Input) > 0 && !bytes.Equal(block.Input, []byte("null")) {
			var args map[string]any
			if err := json.Unmarshal(block.Input, &args); err != nil {
				call.Err = errors.NewToolCallNormalizationError("anthropic", block.Name, err)
			} else if args != nil {
				call.Arguments = args
			}
		}
		calls = append(calls, call)
	}
	return calls
}

type geminiPart struct {
	FunctionCall *struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"functionCall"`
}

func normalizeGemini(raw []byte) []llmtypes.NormalizedToolCall {
	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || len(resp.Candidates) == 0 {
		return nil
	}

	var calls []llmtypes.NormalizedToolCall
	for _, partRaw := range resp.Candidates[0].Content.Parts {
		var part geminiPart
		if err := json.Unmarshal(partRaw, &part); err != nil || part.FunctionCall == nil {
			continue
		}

		fc := part.FunctionCall
		// Gemini only sometimes assigns call IDs
		id := fc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}

		call := llmtypes.NormalizedToolCall{
			ID:        id,
			ToolName:  fc.Name,
			Arguments: map[string]any{},
			Raw:       partRaw,
		}
		if len(fc.Args) > 0 && !bytes.Equal(fc.Args, []byte("null")) {
			var args map[string]any
			if err := json.Unmarshal(fc.Args, &args); err != nil {
				call.Err = errors.NewToolCallNormalizationError("gemini", fc.Name, err)
			} else if args != nil {
				call.Arguments = args
			}
		}
		calls = append(calls, call)
	}
	return calls
}
