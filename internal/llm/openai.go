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

// Default endpoints of the OpenAI-compatible vendors
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GroqBaseURL       = "https://api.groq.com/openai/v1"
)

// OpenAIProvider implements Provider for OpenAI-compatible chat completions.
// OpenRouter and Groq reuse it under their own name and base URL.
type OpenAIProvider struct {
	baseProvider
}

// openaiRequest represents the request body for the chat completions API
type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	Tools         []map[string]any     `json:"tools,omitempty"`
	ToolChoice    any                  `json:"tool_choice,omitempty"`
	Stream        bool                 `json:"stream,omitempty"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// openaiMessage represents a message in OpenAI format. A nil Content is
// sent as null, which assistant tool-call turns require.
type openaiMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// openaiToolCall represents a tool call in OpenAI format
type openaiToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openaiToolCallFunc `json:"function"`
}

// openaiToolCallFunc represents function call details
type openaiToolCallFunc struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// openaiResponse represents the response from the chat completions API
type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	Delta        openaiMessage `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// NewOpenAIProvider creates an adapter for the OpenAI API
func NewOpenAIProvider(model string, cfg config.ProviderConfig, logger *logging.Logger) *OpenAIProvider {
	return NewOpenAICompatibleProvider("openai", OpenAIBaseURL, model, cfg, logger)
}

// NewOpenAICompatibleProvider creates an adapter for a vendor that speaks
// the OpenAI wire format
func NewOpenAICompatibleProvider(name, defaultBaseURL, model string, cfg config.ProviderConfig, logger *logging.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		baseProvider: newBaseProvider(name, model, defaultBaseURL, cfg, logger),
	}
}

// Chat performs one chat turn
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	return p.chat(ctx, req, p)
}

func (p *OpenAIProvider) endpoint(bool) string {
	return p.baseURL + "/chat/completions"
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}
}

// buildRequest converts the normalized request to OpenAI format
func (p *OpenAIProvider) buildRequest(req ChatRequest, stream bool) (any, error) {
	oaReq := openaiRequest{
		Model:       p.model,
		Messages:    openaiMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if stream && p.name == "openai" {
		oaReq.StreamOptions = &openaiStreamOptions{IncludeUsage: true}
	}

	if len(req.Tools) > 0 {
		exported, err := tools.Export(tools.FormatNativeFunctions, req.Tools)
		if err != nil {
			return nil, err
		}
		oaReq.Tools = exported
		oaReq.ToolChoice = openaiToolChoice(req.ToolChoice)
	}
	return oaReq, nil
}

func openaiToolChoice(choice ToolChoice) any {
	switch {
	case choice == "":
		return nil
	case choice.IsNamed():
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": string(choice)},
		}
	default:
		return string(choice)
	}
}

// openaiMessages converts the history. Tool results are preceded by the
// assistant turn that requested them, rebuilt from the tool messages.
func openaiMessages(history []Message) []openaiMessage {
	messages := make([]openaiMessage, 0, len(history))
	for _, run := range groupToolRuns(history) {
		if run.tools == nil {
			msg := run.message
			messages = append(messages, openaiMessage{
				Role:    string(msg.Role),
				Content: nullableContent(msg),
			})
			continue
		}

		assistant := openaiMessage{Role: string(llmtypes.RoleAssistant)}
		if run.text != "" {
			text := run.text
			assistant.Content = &text
		}
		for _, tm := range run.tools {
			args, _ := json.Marshal(nonNilArgs(tm.ToolArgs))
			assistant.ToolCalls = append(assistant.ToolCalls, openaiToolCall{
				ID:       tm.ToolCallID,
				Type:     "function",
				Function: openaiToolCallFunc{Name: tm.ToolName, Arguments: string(args)},
			})
		}
		messages = append(messages, assistant)

		for _, tm := range run.tools {
			content := tm.Content
			messages = append(messages, openaiMessage{
				Role:       string(llmtypes.RoleTool),
				Content:    &content,
				ToolCallID: tm.ToolCallID,
			})
		}
	}
	return messages
}

func nullableContent(msg Message) *string {
	if msg.Content == "" && msg.Role == llmtypes.RoleAssistant {
		return nil
	}
	content := msg.Content
	return &content
}

// parseResponse extracts content, tool calls, finish reason and usage
func (p *OpenAIProvider) parseResponse(body []byte) (ChatResponse, error) {
	var oaResp openaiResponse
	if err := json.Unmarshal(body, &oaResp); err != nil {
		return ChatResponse{}, err
	}

	out := ChatResponse{
		ToolCalls: tools.Normalize(p.name, body),
	}
	if oaResp.Usage != nil {
		out.Usage = llmtypes.Usage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	}
	if len(oaResp.Choices) == 0 {
		return out, nil
	}

	choice := oaResp.Choices[0]
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	if choice.FinishReason != nil {
		out.FinishReason = openaiFinishReason(*choice.FinishReason)
	}
	return out, nil
}

func openaiFinishReason(reason string) llmtypes.FinishReason {
	switch reason {
	case "":
		return ""
	case "stop":
		return llmtypes.FinishStop
	case "tool_calls", "function_call":
		return llmtypes.FinishToolCalls
	case "length":
		return llmtypes.FinishLength
	case "content_filter":
		return llmtypes.FinishContentFilter
	default:
		return llmtypes.FinishOther
	}
}

// streamDecoder handles chat.completion.chunk events terminated by [DONE]
func (p *OpenAIProvider) streamDecoder() chunkDecoder {
	return func(ev SSEEvent) (ChatChunk, bool, bool, error) {
		if IsSSEDone(ev.Data) {
			return ChatChunk{}, false, true, nil
		}
		if err := p.decodeVendorErrorEvent(ev.Data); err != nil {
			return ChatChunk{}, false, false, err
		}

		var oaResp openaiResponse
		if err := json.Unmarshal(ev.Data, &oaResp); err != nil {
			return ChatChunk{}, false, false, fmt.Errorf("malformed chunk: %w", err)
		}
		// The trailing usage-only chunk has no choices
		if len(oaResp.Choices) == 0 {
			return ChatChunk{}, false, false, nil
		}

		choice := oaResp.Choices[0]
		out := newChunk(ev)
		if choice.Delta.Content != nil {
			out.Delta = *choice.Delta.Content
		}
		if choice.FinishReason != nil {
			out.FinishReason = openaiFinishReason(*choice.FinishReason)
		}
		for i, tc := range choice.Delta.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			out.ToolCalls = append(out.ToolCalls, llmtypes.ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return out, true, false, nil
	}
}
