package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/tools"
)

// GeminiBaseURL is the default Generative Language API root
const GeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements Provider for the Gemini generateContent API
type GeminiProvider struct {
	baseProvider
}

// geminiRequest represents the request body for generateContent
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	ToolConfig        *geminiToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string            `json:"role,omitempty"`
	Parts []json.RawMessage `json:"parts"`
}

type geminiTool struct {
	FunctionDeclarations []map[string]any `json:"functionDeclarations"`
}

type geminiToolConfig struct {
	FunctionCallingConfig geminiFunctionCallingConfig `json:"functionCallingConfig"`
}

type geminiFunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

// geminiPart covers the part shapes this adapter reads
type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	Thought      bool            `json:"thought,omitempty"`
	FunctionCall json.RawMessage `json:"functionCall,omitempty"`
}

// geminiResponse represents a generateContent response or stream chunk
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     *int `json:"promptTokenCount"`
		CandidatesTokenCount *int `json:"candidatesTokenCount"`
		TotalTokenCount      *int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiProvider creates an adapter for the Gemini API
func NewGeminiProvider(model string, cfg config.ProviderConfig, logger *logging.Logger) *GeminiProvider {
	return &GeminiProvider{
		baseProvider: newBaseProvider("gemini", model, GeminiBaseURL, cfg, logger),
	}
}

// Chat performs one chat turn
func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	return p.chat(ctx, req, p)
}

func (p *GeminiProvider) endpoint(stream bool) string {
	model := url.PathEscape(p.model)
	if stream {
		return fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
}

func (p *GeminiProvider) headers() map[string]string {
	return map[string]string{
		"x-goog-api-key": p.apiKey,
	}
}

// buildRequest converts the normalized request to Gemini format
func (p *GeminiProvider) buildRequest(req ChatRequest, _ bool) (any, error) {
	gReq := geminiRequest{
		Contents: geminiContents(req.Messages),
	}
	if system := systemPrompt(req.Messages); system != "" {
		gReq.SystemInstruction = &geminiContent{Parts: []json.RawMessage{textPart(system)}}
	}
	if req.MaxTokens > 0 || req.Temperature != nil {
		gReq.GenerationConfig = &geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	if len(req.Tools) > 0 {
		declarations, err := tools.Export(tools.FormatFunctionDeclarations, req.Tools)
		if err != nil {
			return nil, err
		}
		gReq.Tools = []geminiTool{{FunctionDeclarations: declarations}}
		gReq.ToolConfig = geminiToolChoice(req.ToolChoice)
	}
	return gReq, nil
}

func geminiToolChoice(choice ToolChoice) *geminiToolConfig {
	var cfg geminiFunctionCallingConfig
	switch choice {
	case "":
		return nil
	case llmtypes.ToolChoiceAuto:
		cfg.Mode = "AUTO"
	case llmtypes.ToolChoiceNone:
		cfg.Mode = "NONE"
	case llmtypes.ToolChoiceRequired:
		cfg.Mode = "ANY"
	default:
		cfg.Mode = "ANY"
		cfg.AllowedFunctionNames = []string{string(choice)}
	}
	return &geminiToolConfig{FunctionCallingConfig: cfg}
}

// geminiContents converts the history. Assistant turns use the "model"
// role; each run of tool results becomes a model turn of functionCall parts
// followed by a user turn of functionResponse parts.
func geminiContents(history []Message) []geminiContent {
	contents := make([]geminiContent, 0, len(history))
	for _, run := range groupToolRuns(history) {
		if run.tools == nil {
			msg := run.message
			switch msg.Role {
			case llmtypes.RoleSystem:
				continue
			case llmtypes.RoleAssistant:
				if msg.Content == "" {
					continue
				}
				contents = append(contents, geminiContent{Role: "model", Parts: []json.RawMessage{textPart(msg.Content)}})
			default:
				contents = append(contents, geminiContent{Role: "user", Parts: []json.RawMessage{textPart(msg.Content)}})
			}
			continue
		}

		calls := make([]json.RawMessage, 0, len(run.tools)+1)
		if run.text != "" {
			calls = append(calls, textPart(run.text))
		}
		responses := make([]json.RawMessage, 0, len(run.tools))
		for _, tm := range run.tools {
			calls = append(calls, geminiFunctionCallPart(tm))
			responses = append(responses, geminiFunctionResponsePart(tm))
		}
		contents = append(contents,
			geminiContent{Role: "model", Parts: calls},
			geminiContent{Role: "user", Parts: responses},
		)
	}
	return contents
}

func textPart(text string) json.RawMessage {
	part, _ := json.Marshal(map[string]string{"text": text})
	return part
}

// geminiFunctionCallPart replays the original part when known, which keeps
// any thought signature attached to it
func geminiFunctionCallPart(tm Message) json.RawMessage {
	if len(tm.ToolRaw) > 0 {
		var part geminiPart
		if err := json.Unmarshal(tm.ToolRaw, &part); err == nil && len(part.FunctionCall) > 0 {
			return tm.ToolRaw
		}
	}

	part, _ := json.Marshal(map[string]any{
		"functionCall": map[string]any{
			"name": tm.ToolName,
			"args": nonNilArgs(tm.ToolArgs),
		},
	})
	return part
}

// geminiFunctionResponsePart wraps the tool output. The API wants an
// object, so anything else goes under "result".
func geminiFunctionResponsePart(tm Message) json.RawMessage {
	var response map[string]any
	trimmed := bytes.TrimSpace([]byte(tm.Content))
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &response) != nil || response == nil {
		response = map[string]any{"result": tm.Content}
	}

	part, _ := json.Marshal(map[string]any{
		"functionResponse": map[string]any{
			"name":     tm.ToolName,
			"response": response,
		},
	})
	return part
}

// parseResponse extracts content, tool calls, finish reason and usage
func (p *GeminiProvider) parseResponse(body []byte) (ChatResponse, error) {
	var gResp geminiResponse
	if err := json.Unmarshal(body, &gResp); err != nil {
		return ChatResponse{}, err
	}

	out := ChatResponse{
		ToolCalls: tools.Normalize("gemini", body),
	}
	if gResp.UsageMetadata != nil {
		out.Usage = llmtypes.Usage{
			PromptTokens:     gResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gResp.UsageMetadata.TotalTokenCount,
		}
	}

	if len(gResp.Candidates) == 0 {
		if gResp.PromptFeedback != nil && gResp.PromptFeedback.BlockReason != "" {
			out.FinishReason = llmtypes.FinishContentFilter
		}
		return out, nil
	}

	candidate := gResp.Candidates[0]
	for _, part := range candidate.Content.Parts {
		if !part.Thought {
			out.Content += part.Text
		}
	}
	out.FinishReason = geminiFinishReason(candidate.FinishReason, len(out.ToolCalls) > 0)
	return out, nil
}

func geminiFinishReason(reason string, hasCalls bool) llmtypes.FinishReason {
	switch reason {
	case "":
		return ""
	case "STOP":
		// Gemini reports STOP for function-call turns too
		if hasCalls {
			return llmtypes.FinishToolCalls
		}
		return llmtypes.FinishStop
	case "MAX_TOKENS":
		return llmtypes.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return llmtypes.FinishContentFilter
	default:
		return llmtypes.FinishOther
	}
}

// streamDecoder handles alt=sse chunks. Each chunk is a partial
// generateContent response and function calls arrive whole, so every call
// gets its own index. The stream ends when the connection closes.
func (p *GeminiProvider) streamDecoder() chunkDecoder {
	nextIndex := 0
	return func(ev SSEEvent) (ChatChunk, bool, bool, error) {
		if err := p.decodeVendorErrorEvent(ev.Data); err != nil {
			return ChatChunk{}, false, false, err
		}

		var gResp geminiResponse
		if err := json.Unmarshal(ev.Data, &gResp); err != nil {
			return ChatChunk{}, false, false, fmt.Errorf("malformed chunk: %w", err)
		}

		out := newChunk(ev)
		if len(gResp.Candidates) == 0 {
			if gResp.PromptFeedback == nil || gResp.PromptFeedback.BlockReason == "" {
				return ChatChunk{}, false, false, nil
			}
			out.FinishReason = llmtypes.FinishContentFilter
			return out, true, false, nil
		}

		candidate := gResp.Candidates[0]
		for _, call := range tools.Normalize("gemini", ev.Data) {
			args, _ := json.Marshal(call.Arguments)
			out.ToolCalls = append(out.ToolCalls, llmtypes.ToolCallDelta{
				Index:     nextIndex,
				ID:        call.ID,
				Name:      call.ToolName,
				Arguments: string(args),
			})
			nextIndex++
		}
		for _, part := range candidate.Content.Parts {
			if !part.Thought {
				out.Delta += part.Text
			}
		}
		out.FinishReason = geminiFinishReason(candidate.FinishReason, nextIndex > 0)
		return out, true, false, nil
	}
}
