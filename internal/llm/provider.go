package llm

import (
	"context"

	"github.com/user/toolagent/internal/llmtypes"
)

// Type aliases so callers rarely need llmtypes directly
type (
	Message            = llmtypes.Message
	ToolDefinition     = llmtypes.ToolDefinition
	NormalizedToolCall = llmtypes.NormalizedToolCall
	ChatResponse       = llmtypes.ChatResponse
	ChatChunk          = llmtypes.ChatChunk
	ToolChoice         = llmtypes.ToolChoice
)

// Provider is the vendor-neutral chat contract. Implementations translate
// ChatRequest into one vendor call and the reply back into the normalized
// shapes. They never retry.
type Provider interface {
	// Chat performs one turn. Transport, auth and API failures are
	// returned as *errors.ProviderRequestError.
	Chat(ctx context.Context, req ChatRequest) (ChatResult, error)

	// Name returns the canonical provider name
	Name() string

	// Model returns the model identifier requests are sent to
	Model() string
}

// ChatRequest is a normalized chat request
type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice // ignored when Tools is empty
	Stream      bool
	MaxTokens   int      // 0 uses the vendor default
	Temperature *float64 // nil uses the vendor default
}

// ChatResult holds exactly one of Stream or Response.
//
// A streaming request normally yields Stream. When the vendor cannot stream,
// or streaming is disabled for the provider, the adapter completes the turn
// with a single non-streaming request and returns Response instead. Callers
// must check which variant they received.
type ChatResult struct {
	Stream   *Stream
	Response *ChatResponse
}

// Completed wraps a finished response
func Completed(resp ChatResponse) ChatResult {
	return ChatResult{Response: &resp}
}

// Streamed wraps an open stream
func Streamed(s *Stream) ChatResult {
	return ChatResult{Stream: s}
}

// IsStream reports whether the result is the streaming variant
func (r ChatResult) IsStream() bool {
	return r.Stream != nil
}

// Collect returns the completed response, draining and closing the stream
// variant if necessary
func (r ChatResult) Collect() (ChatResponse, error) {
	if r.Stream != nil {
		return r.Stream.Collect()
	}
	if r.Response != nil {
		return *r.Response, nil
	}
	return ChatResponse{}, nil
}
