package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/llmtypes"
)

func TestMockProvider_ScriptedTurns(t *testing.T) {
	m := NewMockProvider(
		CallTools("", Call("call_1", "add", map[string]any{"a": 1.0, "b": 2.0})),
		Reply("3"),
	)
	ctx := context.Background()

	first, err := m.Chat(ctx, llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "1+2"}}})
	require.NoError(t, err)
	require.NotNil(t, first.Response)
	assert.Len(t, first.Response.ToolCalls, 1)

	second, err := m.Chat(ctx, llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "3", second.Response.Content)

	third, err := m.Chat(ctx, llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "3", third.Response.Content, "last turn repeats")

	assert.Equal(t, 3, m.CallCount())
	assert.Len(t, m.RequestHistory(), 3)
	assert.Equal(t, "1+2", m.RequestHistory()[0].Messages[0].Content)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Empty(t, m.RequestHistory())
}

func TestMockProvider_RequestMessagesAreCopied(t *testing.T) {
	m := NewMockProvider(Reply("ok"))
	history := make([]llm.Message, 1, 4)
	history[0] = llm.Message{Role: "user", Content: "a"}

	_, err := m.Chat(context.Background(), llm.ChatRequest{Messages: history})
	require.NoError(t, err)
	history[0].Content = "changed"

	assert.Equal(t, "a", m.LastRequest().Messages[0].Content)
}

func TestMockProvider_Errors(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewMockProvider(Fail(boom)).Chat(context.Background(), llm.ChatRequest{})
	assert.ErrorIs(t, err, boom)

	_, err = NewMockProvider().Chat(context.Background(), llm.ChatRequest{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMockProvider(Reply("x")).Chat(ctx, llm.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockProvider_Stream(t *testing.T) {
	m := NewMockProvider(StreamTurn(TextChunks("Hel", "lo")...))

	result, err := m.Chat(context.Background(), llm.ChatRequest{Stream: true})
	require.NoError(t, err)
	require.True(t, result.IsStream())

	var deltas []string
	s := result.Stream
	for s.Next() {
		deltas = append(deltas, s.Current().Delta)
	}
	require.NoError(t, s.Err())
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", s.Text())
}

func TestScriptedStream_Collect(t *testing.T) {
	s := ScriptedStream(context.Background(),
		llm.ChatChunk{ToolCalls: []llmtypes.ToolCallDelta{{Index: 0, ID: "c1", Name: "echo", Arguments: `{"text":`}}},
		llm.ChatChunk{ToolCalls: []llmtypes.ToolCallDelta{{Index: 0, Arguments: `"hi"}`}}, FinishReason: llmtypes.FinishToolCalls},
	)

	resp, err := s.Collect()
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, map[string]any{"text": "hi"}, resp.ToolCalls[0].Arguments)
	assert.Equal(t, llmtypes.FinishToolCalls, resp.FinishReason)
}

func TestNewToolRegistry(t *testing.T) {
	reg := NewToolRegistry(t)
	assert.Equal(t, []string{"add", "echo", "fail"}, reg.Names())

	handler, _, err := reg.Get("add")
	require.NoError(t, err)
	sum, err := handler(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
}
