package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/tools"
)

const (
	// AnthropicBaseURL is the default Messages API endpoint root
	AnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"

	// The Messages API requires max_tokens
	anthropicDefaultMaxTokens = 4096
)

// AnthropicProvider implements Provider for the Anthropic Messages API
type AnthropicProvider struct {
	baseProvider
}

// anthropicRequest represents the request body for the Messages API
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []map[string]any   `json:"tools,omitempty"`
	ToolChoice  map[string]any     `json:"tool_choice,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContentBlock
}

// anthropicContentBlock covers the text, tool_use and tool_result blocks
type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// anthropicResponse represents the Messages API response
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason *string                 `json:"stop_reason"`
	Usage      *anthropicUsage         `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

// anthropicStreamEvent is the union of the streaming event payloads
type anthropicStreamEvent struct {
	Type         string                 `json:"type"`
	Index        int                    `json:"index"`
	ContentBlock *anthropicContentBlock `json:"content_block"`
	Delta        *struct {
		Type        string  `json:"type"`
		Text        string  `json:"text"`
		PartialJSON string  `json:"partial_json"`
		StopReason  *string `json:"stop_reason"`
	} `json:"delta"`
}

// NewAnthropicProvider creates an adapter for the Anthropic API
func NewAnthropicProvider(model string, cfg config.ProviderConfig, logger *logging.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		baseProvider: newBaseProvider("anthropic", model, AnthropicBaseURL, cfg, logger),
	}
}

// Chat performs one chat turn
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	return p.chat(ctx, req, p)
}

func (p *AnthropicProvider) endpoint(bool) string {
	return p.baseURL + "/v1/messages"
}

func (p *AnthropicProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// buildRequest converts the normalized request to Anthropic format
func (p *AnthropicProvider) buildRequest(req ChatRequest, stream bool) (any, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	anReq := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      systemPrompt(req.Messages),
		Messages:    anthropicMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      stream,
	}

	if len(req.Tools) > 0 {
		exported, err := tools.Export(tools.FormatAnthropicTools, req.Tools)
		if err != nil {
			return nil, err
		}
		anReq.Tools = exported
		anReq.ToolChoice = anthropicToolChoice(req.ToolChoice)
	}
	return anReq, nil
}

func anthropicToolChoice(choice ToolChoice) map[string]any {
	switch choice {
	case "":
		return nil
	case llmtypes.ToolChoiceAuto:
		return map[string]any{"type": "auto"}
	case llmtypes.ToolChoiceNone:
		return map[string]any{"type": "none"}
	case llmtypes.ToolChoiceRequired:
		return map[string]any{"type": "any"}
	default:
		return map[string]any{"type": "tool", "name": string(choice)}
	}
}

// anthropicMessages converts the history. System messages travel in the
// system field; each run of tool results becomes an assistant tool_use turn
// followed by a user turn of tool_result blocks.
func anthropicMessages(history []Message) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(history))
	for _, run := range groupToolRuns(history) {
		if run.tools == nil {
			msg := run.message
			switch msg.Role {
			case llmtypes.RoleSystem:
				continue
			case llmtypes.RoleAssistant:
				// Empty assistant text blocks are rejected
				if msg.Content == "" {
					continue
				}
			}
			messages = append(messages, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		uses := make([]json.RawMessage, 0, len(run.tools)+1)
		if run.text != "" {
			block, _ := json.Marshal(anthropicContentBlock{Type: "text", Text: run.text})
			uses = append(uses, block)
		}
		results := make([]anthropicContentBlock, 0, len(run.tools))
		for _, tm := range run.tools {
			uses = append(uses, anthropicToolUse(tm))
			results = append(results, anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: tm.ToolCallID,
				Content:   tm.Content,
			})
		}
		messages = append(messages,
			anthropicMessage{Role: string(llmtypes.RoleAssistant), Content: uses},
			anthropicMessage{Role: string(llmtypes.RoleUser), Content: results},
		)
	}
	return messages
}

// anthropicToolUse replays the original tool_use block when it is known
func anthropicToolUse(tm Message) json.RawMessage {
	if len(tm.ToolRaw) > 0 {
		var block anthropicContentBlock
		if err := json.Unmarshal(tm.ToolRaw, &block); err == nil && block.Type == "tool_use" && block.ID == tm.ToolCallID {
			return tm.ToolRaw
		}
	}

	input, _ := json.Marshal(nonNilArgs(tm.ToolArgs))
	block, _ := json.Marshal(anthropicContentBlock{
		Type:  "tool_use",
		ID:    tm.ToolCallID,
		Name:  tm.ToolName,
		Input: input,
	})
	return block
}

// parseResponse extracts content, tool calls, finish reason and usage
func (p *AnthropicProvider) parseResponse(body []byte) (ChatResponse, error) {
	var anResp anthropicResponse
	if err := json.Unmarshal(body, &anResp); err != nil {
		return ChatResponse{}, err
	}

	out := ChatResponse{
		ToolCalls: tools.Normalize("anthropic", body),
	}
	for _, block := range anResp.Content {
		if block.Type == "text" {
			out.Content += block.Text
		}
	}
	if anResp.StopReason != nil {
		out.FinishReason = anthropicFinishReason(*anResp.StopReason)
	}
	if anResp.Usage != nil {
		out.Usage = llmtypes.Usage{
			PromptTokens:     anResp.Usage.InputTokens,
			CompletionTokens: anResp.Usage.OutputTokens,
		}
		if anResp.Usage.InputTokens != nil && anResp.Usage.OutputTokens != nil {
			out.Usage.TotalTokens = llmtypes.IntPtr(*anResp.Usage.InputTokens + *anResp.Usage.OutputTokens)
		}
	}
	return out, nil
}

func anthropicFinishReason(reason string) llmtypes.FinishReason {
	switch reason {
	case "":
		return ""
	case "end_turn", "stop_sequence":
		return llmtypes.FinishStop
	case "tool_use":
		return llmtypes.FinishToolCalls
	case "max_tokens":
		return llmtypes.FinishLength
	case "refusal":
		return llmtypes.FinishContentFilter
	default:
		return llmtypes.FinishOther
	}
}

// streamDecoder handles the typed Messages streaming events
func (p *AnthropicProvider) streamDecoder() chunkDecoder {
	return func(ev SSEEvent) (ChatChunk, bool, bool, error) {
		var event anthropicStreamEvent
		if err := json.Unmarshal(ev.Data, &event); err != nil {
			return ChatChunk{}, false, false, fmt.Errorf("malformed %s event: %w", ev.Event, err)
		}
		if event.Type == "" {
			event.Type = ev.Event
		}

		out := newChunk(ev)
		switch event.Type {
		case "content_block_start":
			if event.ContentBlock == nil || event.ContentBlock.Type != "tool_use" {
				return ChatChunk{}, false, false, nil
			}
			out.ToolCalls = []llmtypes.ToolCallDelta{{
				Index: event.Index,
				ID:    event.ContentBlock.ID,
				Name:  event.ContentBlock.Name,
			}}
			return out, true, false, nil

		case "content_block_delta":
			if event.Delta == nil {
				return ChatChunk{}, false, false, nil
			}
			switch event.Delta.Type {
			case "text_delta":
				out.Delta = event.Delta.Text
			case "input_json_delta":
				out.ToolCalls = []llmtypes.ToolCallDelta{{
					Index:     event.Index,
					Arguments: event.Delta.PartialJSON,
				}}
			default:
				// thinking and signature deltas are not surfaced
				return ChatChunk{}, false, false, nil
			}
			return out, true, false, nil

		case "message_delta":
			if event.Delta == nil || event.Delta.StopReason == nil {
				return ChatChunk{}, false, false, nil
			}
			out.FinishReason = anthropicFinishReason(*event.Delta.StopReason)
			return out, true, false, nil

		case "message_stop":
			return ChatChunk{}, false, true, nil

		case "error":
			if err := p.decodeVendorErrorEvent(ev.Data); err != nil {
				return ChatChunk{}, false, false, err
			}
			return ChatChunk{}, false, false, fmt.Errorf("stream error event: %s", ev.Data)
		}

		// message_start, content_block_stop, ping
		return ChatChunk{}, false, false, nil
	}
}
