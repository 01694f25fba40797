package llmtypes

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a chat message. An empty Content stands for a null content.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"` // for role="tool"

	// Tool-role messages also carry the call they answer, so adapters can
	// replay the invocation in the vendor's native shape.
	ToolName string          `json:"tool_name,omitempty"`
	ToolArgs map[string]any  `json:"tool_args,omitempty"`
	ToolRaw  json.RawMessage `json:"-"`

	// ToolRound groups the tool messages answering one model turn, and
	// RoundText holds any text the model sent with that turn (set on the
	// round's first message). Neither is sent as-is; adapters use them to
	// rebuild one assistant turn per round.
	ToolRound int    `json:"tool_round,omitempty"`
	RoundText string `json:"-"`
}

// ToolDefinition defines a tool for the LLM
type ToolDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
}

// NormalizedToolCall is a vendor-independent tool invocation request.
// Err is set when the vendor payload for this call could not be decoded;
// sibling calls in the same batch are unaffected.
type NormalizedToolCall struct {
	ID        string          `json:"id,omitempty"`
	ToolName  string          `json:"tool_name"`
	Arguments map[string]any  `json:"arguments"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Err       error           `json:"-"`
}

// FinishReason is the normalized reason a completion ended. Empty means unknown.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Usage tracks token usage. Nil fields were not reported by the vendor.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// ChatResponse is the normalized non-streaming reply
type ChatResponse struct {
	Content      string               `json:"content"`
	ToolCalls    []NormalizedToolCall `json:"tool_calls"`
	FinishReason FinishReason         `json:"finish_reason,omitempty"`
	Usage        Usage                `json:"usage"`
	ResponseTime time.Duration        `json:"response_time"`
	Raw          json.RawMessage      `json:"raw,omitempty"`
}

// ToolCallDelta is a fragment of a tool call observed while streaming.
// Arguments holds the JSON text received in this chunk only.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatChunk is one incremental unit of a streamed reply
type ChatChunk struct {
	Delta        string          `json:"delta,omitempty"`
	ToolCalls    []ToolCallDelta `json:"tool_calls,omitempty"`
	FinishReason FinishReason    `json:"finish_reason,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// ToolChoice is the tool-choice policy sent with a request. Values other
// than the constants below name a specific tool the model must call.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// IsNamed reports whether the policy forces one specific tool
func (c ToolChoice) IsNamed() bool {
	switch c {
	case "", ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return false
	}
	return true
}

// IntPtr returns a pointer to v, for populating Usage
func IntPtr(v int) *int {
	return &v
}
