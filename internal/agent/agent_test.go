package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/toolagent/internal/config"
	toolerrors "github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/logging"
	testHelpers "github.com/user/toolagent/internal/testing"
	"github.com/user/toolagent/internal/tools"
)

func newAgent(t *testing.T, provider llm.Provider, cfg Config) *Agent {
	t.Helper()
	return New(provider, testHelpers.NewToolRegistry(t), nil, cfg)
}

func TestProcessQuery_DirectAnswer(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.Reply("4"))
	cfg := DefaultConfig()
	cfg.SystemPrompt = "You are a helpful assistant."
	a := newAgent(t, provider, cfg)

	answer, err := a.ProcessQuery(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", answer)
	assert.Equal(t, StateDone, a.State())

	history := a.History()
	require.Len(t, history, 3)
	assert.Equal(t, llm.Message{Role: llmtypes.RoleSystem, Content: "You are a helpful assistant."}, history[0])
	assert.Equal(t, llm.Message{Role: llmtypes.RoleUser, Content: "What is 2+2?"}, history[1])
	assert.Equal(t, llm.Message{Role: llmtypes.RoleAssistant, Content: "4"}, history[2])

	req := provider.LastRequest()
	assert.False(t, req.Stream)
	assert.Len(t, req.Tools, 3)
	assert.Equal(t, llmtypes.ToolChoiceAuto, req.ToolChoice)
}

func TestProcessQuery_ToolRoundTrip(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("", testHelpers.Call("call_1", "add", map[string]any{"a": 2.0, "b": 3.0})),
		testHelpers.Reply("5"),
	)
	a := newAgent(t, provider, DefaultConfig())

	answer, err := a.ProcessQuery(context.Background(), "add 2 and 3")
	require.NoError(t, err)
	assert.Equal(t, "5", answer)

	history := a.History()
	require.Len(t, history, 4)
	assert.Equal(t, llmtypes.RoleSystem, history[0].Role)
	assert.Equal(t, llmtypes.RoleUser, history[1].Role)

	toolMsg := history[2]
	assert.Equal(t, llmtypes.RoleTool, toolMsg.Role)
	assert.Equal(t, "5", toolMsg.Content)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "add", toolMsg.ToolName)
	assert.Equal(t, map[string]any{"a": 2.0, "b": 3.0}, toolMsg.ToolArgs)

	assert.Equal(t, llm.Message{Role: llmtypes.RoleAssistant, Content: "5"}, history[3])

	// the second request carries the tool result
	requests := provider.RequestHistory()
	require.Len(t, requests, 2)
	assert.Len(t, requests[0].Messages, 2)
	assert.Len(t, requests[1].Messages, 3)
	assert.Equal(t, llmtypes.RoleTool, requests[1].Messages[2].Role)
}

func TestProcessQuery_IterationLimit(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("Still working", testHelpers.Call("call_1", "echo", map[string]any{"text": "again"})),
	)
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	a := newAgent(t, provider, cfg)

	answer, err := a.ProcessQuery(context.Background(), "loop forever")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, cfg.PartialAnswerPrefix))
	assert.Equal(t, cfg.PartialAnswerPrefix+"Still working", answer)
	assert.Equal(t, StateIterationLimitReached, a.State())
	assert.Equal(t, 3, provider.CallCount())

	history := a.History()
	last := history[len(history)-1]
	assert.Equal(t, llmtypes.RoleAssistant, last.Role)
	assert.Equal(t, answer, last.Content)

	var toolMessages int
	for _, msg := range history {
		if msg.Role == llmtypes.RoleTool {
			toolMessages++
		}
	}
	assert.Equal(t, 3, toolMessages)
}

func TestProcessQuery_ToolRoundsAreTagged(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("Adding first.", testHelpers.Call("call_1", "add", map[string]any{"a": 2.0, "b": 3.0})),
		testHelpers.CallTools("",
			testHelpers.Call("call_2", "add", map[string]any{"a": 5.0, "b": 4.0}),
			testHelpers.Call("call_3", "echo", map[string]any{"text": "9"}),
		),
		testHelpers.Reply("9"),
	)
	a := newAgent(t, provider, DefaultConfig())

	_, err := a.ProcessQuery(context.Background(), "add twice")
	require.NoError(t, err)

	var rounds []int
	var texts []string
	for _, msg := range a.History() {
		if msg.Role == llmtypes.RoleTool {
			rounds = append(rounds, msg.ToolRound)
			texts = append(texts, msg.RoundText)
		}
	}
	assert.Equal(t, []int{1, 2, 2}, rounds)
	assert.Equal(t, []string{"Adding first.", "", ""}, texts)

	// a later query starts a new round
	provider.Reset()
	_, err = a.ProcessQuery(context.Background(), "again")
	require.NoError(t, err)
	history := a.History()
	assert.Equal(t, 3, history[len(history)-4].ToolRound)
	assert.Equal(t, 4, history[len(history)-3].ToolRound)
	assert.Equal(t, 4, history[len(history)-2].ToolRound)
}

func TestProcessQuery_ToolsRunInModelOrder(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("",
			testHelpers.Call("c1", "echo", map[string]any{"text": "first"}),
			testHelpers.Call("c2", "add", map[string]any{"a": 1.0, "b": 1.0}),
			testHelpers.Call("c3", "echo", map[string]any{"text": "third"}),
		),
		testHelpers.Reply("done"),
	)
	a := newAgent(t, provider, DefaultConfig())

	_, err := a.ProcessQuery(context.Background(), "go")
	require.NoError(t, err)

	history := a.History()
	require.Len(t, history, 6)
	assert.Equal(t, "first", history[2].Content)
	assert.Equal(t, "2", history[3].Content)
	assert.Equal(t, "third", history[4].Content)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{history[2].ToolCallID, history[3].ToolCallID, history[4].ToolCallID})
}

func TestProcessQuery_ToolFailuresAreFedBack(t *testing.T) {
	badArgs := testHelpers.Call("c3", "add", nil)
	badArgs.Err = toolerrors.NewToolCallNormalizationError("openai", "add", errors.New("unexpected end of JSON input"))

	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("",
			testHelpers.Call("c1", "missing", nil),
			testHelpers.Call("c2", "fail", nil),
			badArgs,
		),
		testHelpers.Reply("sorry"),
	)
	a := newAgent(t, provider, DefaultConfig())

	answer, err := a.ProcessQuery(context.Background(), "break things")
	require.NoError(t, err)
	assert.Equal(t, "sorry", answer)

	history := a.History()
	kinds := make([]string, 0, 3)
	for _, msg := range history[2:5] {
		var payload struct {
			Error tools.ErrorRecord `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Content), &payload), msg.Content)
		kinds = append(kinds, payload.Error.Kind)
	}
	assert.Equal(t, []string{"UnknownToolError", "ToolExecutionError", "ToolCallNormalizationError"}, kinds)
}

func TestProcessQuery_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	a := newAgent(t, testHelpers.NewMockProvider(testHelpers.Fail(boom)), DefaultConfig())

	answer, err := a.ProcessQuery(context.Background(), "hi")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "Error: LLM call failed: connection refused", answer)
	assert.Equal(t, StateAwaitingUserInput, a.State())
	assert.Len(t, a.History(), 2, "user message is kept")
}

func TestProcessQuery_StreamedResponseIsCollected(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.StreamTurn(testHelpers.TextChunks("fo", "ur")...))
	a := newAgent(t, provider, DefaultConfig())

	answer, err := a.ProcessQuery(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "four", answer)
}

func TestProcessQuery_NoToolsRegistered(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.Reply("hi"))
	a := New(provider, tools.NewRegistry(), nil, DefaultConfig())

	_, err := a.ProcessQuery(context.Background(), "hello")
	require.NoError(t, err)

	req := provider.LastRequest()
	assert.Empty(t, req.Tools)
	assert.Equal(t, llmtypes.ToolChoice(""), req.ToolChoice)
}

func TestProcessQuery_TruncatesLargeToolResults(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("", testHelpers.Call("c1", "echo", map[string]any{"text": strings.Repeat("x", 100)})),
		testHelpers.Reply("ok"),
	)
	cfg := DefaultConfig()
	cfg.MaxToolResultBytes = 10
	a := newAgent(t, provider, cfg)

	_, err := a.ProcessQuery(context.Background(), "big")
	require.NoError(t, err)

	content := a.History()[2].Content
	assert.True(t, strings.HasPrefix(content, strings.Repeat("x", 10)+"\n\n[TRUNCATED"), content)
}

func TestProcessQueryStream(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.StreamTurn(testHelpers.TextChunks("Hel", "lo")...))
	a := newAgent(t, provider, DefaultConfig())

	result, err := a.ProcessQueryStream(context.Background(), "hi")
	require.NoError(t, err)
	require.True(t, result.IsStream())

	req := provider.LastRequest()
	assert.True(t, req.Stream)
	assert.Empty(t, req.Tools, "tools are not offered when streaming")

	resp, err := result.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Content)

	a.RecordReply(resp.Content)
	history := a.History()
	require.Len(t, history, 3)
	assert.Equal(t, llm.Message{Role: llmtypes.RoleAssistant, Content: "Hello"}, history[2])
}

func TestReset(t *testing.T) {
	a := newAgent(t, testHelpers.NewMockProvider(testHelpers.Reply("ok")), DefaultConfig())
	_, err := a.ProcessQuery(context.Background(), "hi")
	require.NoError(t, err)

	a.Reset()
	assert.Equal(t, StateAwaitingUserInput, a.State())
	require.Len(t, a.History(), 1)
	assert.Equal(t, llmtypes.RoleSystem, a.History()[0].Role)
}

func TestNew_AppliesDefaults(t *testing.T) {
	a := New(testHelpers.NewMockProvider(), nil, nil, Config{})
	assert.Equal(t, 5, a.cfg.MaxIterations)
	assert.Equal(t, "Max tool-call iterations reached. Partial answer: ", a.cfg.PartialAnswerPrefix)
	assert.Equal(t, "You are a helpful assistant. Use tools when necessary.", a.History()[0].Content)
}

func TestAgent_LogsConversationID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	a := New(testHelpers.NewMockProvider(testHelpers.Reply("ok")), nil, logging.FromZap(zap.New(core)), DefaultConfig())

	_, err := a.ProcessQuery(context.Background(), "hi")
	require.NoError(t, err)

	entries := logs.FilterMessage("LLM response received").All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ContextMap()["conversation_id"])
	assert.Equal(t, "agent", entries[0].LoggerName)
}

func TestConfigFrom_Temperature(t *testing.T) {
	cfg := ConfigFrom(config.AgentConfig{MaxIterations: 2})
	assert.Nil(t, cfg.Temperature)

	provider := testHelpers.NewMockProvider(testHelpers.Reply("ok"))
	a := newAgent(t, provider, cfg)
	_, err := a.ProcessQuery(context.Background(), "hi")
	require.NoError(t, err)
	assert.Nil(t, provider.LastRequest().Temperature, "vendor default is left alone")

	zero := 0.0
	src := config.AgentConfig{Temperature: &zero}
	cfg = ConfigFrom(src)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.0, *cfg.Temperature)
	*src.Temperature = 1.0
	assert.Equal(t, 0.0, *cfg.Temperature, "the setting is copied")
}

func TestTruncateToolResult(t *testing.T) {
	assert.Equal(t, "short", truncateToolResult("short", 10))
	assert.Equal(t, "anything", truncateToolResult("anything", 0))

	// "é" is two bytes; the cut backs off rather than splitting it
	out := truncateToolResult("aé", 2)
	assert.True(t, strings.HasPrefix(out, "a\n\n[TRUNCATED"), out)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "iteration_limit_reached", StateIterationLimitReached.String())
	assert.Equal(t, "unknown", State(42).String())
}
