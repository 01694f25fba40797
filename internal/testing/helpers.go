package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/llmtypes"
)

// Turn is one scripted provider reply. Exactly one of Response, Chunks or
// Err is used, in that order of precedence: Err first.
type Turn struct {
	Response *llm.ChatResponse
	Chunks   []llm.ChatChunk
	Err      error
}

// Reply scripts a text answer without tool calls
func Reply(content string) Turn {
	return Turn{Response: &llm.ChatResponse{
		Content:      content,
		ToolCalls:    []llm.NormalizedToolCall{},
		FinishReason: llmtypes.FinishStop,
	}}
}

// CallTools scripts a tool-calling turn with optional accompanying text
func CallTools(content string, calls ...llm.NormalizedToolCall) Turn {
	return Turn{Response: &llm.ChatResponse{
		Content:      content,
		ToolCalls:    calls,
		FinishReason: llmtypes.FinishToolCalls,
	}}
}

// StreamTurn scripts a streamed reply
func StreamTurn(chunks ...llm.ChatChunk) Turn {
	return Turn{Chunks: chunks}
}

// Fail scripts a failed request
func Fail(err error) Turn {
	return Turn{Err: err}
}

// Call builds a normalized tool call
func Call(id, name string, args map[string]any) llm.NormalizedToolCall {
	if args == nil {
		args = map[string]any{}
	}
	return llm.NormalizedToolCall{ID: id, ToolName: name, Arguments: args}
}

// MockProvider implements llm.Provider with scripted turns. Once the script
// is exhausted the last turn is repeated.
type MockProvider struct {
	mu             sync.Mutex
	name           string
	model          string
	turns          []Turn
	callCount      int
	requestHistory []llm.ChatRequest
}

// NewMockProvider creates a mock provider replaying turns in order
func NewMockProvider(turns ...Turn) *MockProvider {
	return &MockProvider{
		name:  "mock",
		model: "mock-model",
		turns: turns,
	}
}

// Chat implements llm.Provider
func (m *MockProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The caller keeps appending to its history slice
	req.Messages = append([]llm.Message(nil), req.Messages...)
	m.requestHistory = append(m.requestHistory, req)

	if err := ctx.Err(); err != nil {
		return llm.ChatResult{}, err
	}
	if len(m.turns) == 0 {
		return llm.ChatResult{}, fmt.Errorf("no responses configured")
	}

	idx := m.callCount
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	}
	m.callCount++

	turn := m.turns[idx]
	switch {
	case turn.Err != nil:
		return llm.ChatResult{}, turn.Err
	case turn.Response != nil:
		return llm.Completed(*turn.Response), nil
	default:
		return llm.Streamed(ScriptedStream(ctx, turn.Chunks...)), nil
	}
}

// Name implements llm.Provider
func (m *MockProvider) Name() string {
	return m.name
}

// Model implements llm.Provider
func (m *MockProvider) Model() string {
	return m.model
}

// CallCount returns how many requests were made
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// RequestHistory returns every request received, oldest first
func (m *MockProvider) RequestHistory() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatRequest(nil), m.requestHistory...)
}

// LastRequest returns the most recent request
func (m *MockProvider) LastRequest() llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requestHistory) == 0 {
		return llm.ChatRequest{}
	}
	return m.requestHistory[len(m.requestHistory)-1]
}

// Reset clears recorded requests and rewinds the script
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requestHistory = nil
}
