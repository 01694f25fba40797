package cmd

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/toolagent/internal/agent"
	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/prompts"
	testHelpers "github.com/user/toolagent/internal/testing"
)

func withProvider(t *testing.T, p llm.Provider) {
	t.Helper()
	orig := newProvider
	newProvider = func(*config.Config, *logging.Logger, string, string) (llm.Provider, error) {
		return p, nil
	}
	t.Cleanup(func() { newProvider = orig })
}

func newSession(t *testing.T, p llm.Provider, stream bool) (*chatSession, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := agent.New(p, testHelpers.NewToolRegistry(t), nil, agent.DefaultConfig())
	return &chatSession{agent: a, stream: stream, out: &out, errOut: &errOut, logger: logging.NewNopLogger()}, &out, &errOut
}

func TestChatCommand_OneShot(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)

	provider := testHelpers.NewMockProvider(
		testHelpers.CallTools("", testHelpers.Call("c1", "list_files", nil)),
		testHelpers.Reply("There are no files."),
	)
	withProvider(t, provider)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"chat", "--workspace", dir, "What", "is", "here?"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "There are no files.\n", out.String())

	requests := provider.RequestHistory()
	require.Len(t, requests, 2)
	assert.Equal(t, "What is here?", requests[0].Messages[1].Content)
	assert.Len(t, requests[0].Tools, 3)
}

func TestChatSession_Stream(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.StreamTurn(testHelpers.TextChunks("Hel", "lo")...))
	s, out, _ := newSession(t, provider, true)

	require.NoError(t, s.ask(context.Background(), "hi"))
	assert.Equal(t, "Hello\n", out.String())

	history := s.agent.History()
	assert.Equal(t, "Hello", history[len(history)-1].Content)
}

func TestChatSession_StreamFallbackToCompleted(t *testing.T) {
	provider := testHelpers.NewMockProvider(testHelpers.Reply("whole answer"))
	s, out, _ := newSession(t, provider, true)

	require.NoError(t, s.ask(context.Background(), "hi"))
	assert.Equal(t, "whole answer\n", out.String())
}

func TestChatSession_REPL(t *testing.T) {
	provider := testHelpers.NewMockProvider(
		testHelpers.Fail(stderrors.New("connection reset")),
		testHelpers.Reply("hello"),
	)
	s, out, errOut := newSession(t, provider, false)

	in := strings.NewReader("first\n\nsecond\n/history\n/reset\n/exit\nnever sent\n")
	require.NoError(t, s.repl(context.Background(), in))

	assert.Contains(t, errOut.String(), "connection reset")
	assert.Contains(t, out.String(), "hello\n")
	assert.Contains(t, out.String(), "[user] second")
	assert.Contains(t, out.String(), "[assistant] hello")
	assert.Contains(t, out.String(), "Conversation cleared.")
	assert.Equal(t, 2, provider.CallCount())
	assert.Len(t, s.agent.History(), 1)
}

func TestListTools(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, listTools(&buf, testHelpers.NewToolRegistry(t)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.True(t, strings.HasPrefix(lines[1], "add"))
	assert.Contains(t, lines[1], "Add two integers")
}

func TestWriteSchema(t *testing.T) {
	reg := testHelpers.NewToolRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, writeSchema(&buf, reg, "anthropic-tools", "json"))
	assert.Contains(t, buf.String(), `"input_schema"`)

	buf.Reset()
	require.NoError(t, writeSchema(&buf, reg, "all", "yaml"))
	for _, key := range []string{"native-functions:", "anthropic-tools:", "generic-function-declarations:"} {
		assert.Contains(t, buf.String(), key)
	}

	assert.Error(t, writeSchema(&buf, reg, "xml-tools", "json"))
	assert.Error(t, writeSchema(&buf, reg, "all", "toml"))
}

func TestListProviders(t *testing.T) {
	cfg := &config.Config{
		Provider:  "anthropic",
		Providers: map[string]config.ProviderConfig{"anthropic": {APIKey: "k"}},
	}

	var buf bytes.Buffer
	require.NoError(t, listProviders(&buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "anthropic (default)")
	assert.Regexp(t, `anthropic \(default\)\s+claude-sonnet-4-5\s+configured\s+anthropic-tools`, out)
	assert.Regexp(t, `openai\s+gpt-4o\s+missing\s+native-functions`, out)
}

func TestListPrompts(t *testing.T) {
	mgr := prompts.NewManagerFromMap(map[string]string{
		"default": "You are a helpful assistant.",
		"long":    strings.Repeat("word ", 20),
	})

	var buf bytes.Buffer
	require.NoError(t, listPrompts(&buf, mgr))
	assert.Regexp(t, `default\s+map\s+You are a helpful assistant\.`, buf.String())
	assert.Contains(t, buf.String(), "...")
}

func TestNewChatAgent_RendersNamedPrompt(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)

	promptDir := filepath.Join(".toolagent", "prompts")
	require.NoError(t, os.MkdirAll(promptDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(promptDir, "team.yaml"),
		[]byte("coder: 'You are {{.Model}} on {{.Provider}}. Tools: {{join .Tools \", \"}}'\n"), 0644))

	withProvider(t, testHelpers.NewMockProvider(testHelpers.Reply("ok")))
	chatPrompt = "coder"
	chatWorkspace = dir
	t.Cleanup(func() {
		chatPrompt = prompts.DefaultName
		chatWorkspace = "."
	})

	cc := &CommandContext{Config: &config.Config{}, Logger: logging.NewNopLogger()}
	a, err := newChatAgent(cc)
	require.NoError(t, err)

	system := a.History()[0]
	assert.Equal(t, "You are mock-model on mock. Tools: read_file, list_files, search_files", system.Content)
}

func TestChatCommand_ConfiguredModelStaysWithConfiguredProvider(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	require.NoError(t, os.MkdirAll(".toolagent", 0755))
	require.NoError(t, os.WriteFile(filepath.Join(".toolagent", "config.yaml"),
		[]byte("provider: openai\nmodel: gpt-4o-mini\n"), 0644))

	// Build the real adapter, then answer through a mock
	var built llm.Provider
	orig := newProvider
	newProvider = func(cfg *config.Config, logger *logging.Logger, name, model string) (llm.Provider, error) {
		p, err := orig(cfg, logger, name, model)
		if err != nil {
			return nil, err
		}
		built = p
		return testHelpers.NewMockProvider(testHelpers.Reply("ok")), nil
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		newProvider = orig
		chatProvider, chatModel = "", ""
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	run := func(args ...string) llm.Provider {
		t.Helper()
		chatProvider, chatModel = "", ""
		built = nil
		rootCmd.SetArgs(append([]string{"chat"}, args...))
		require.NoError(t, rootCmd.Execute())
		require.NotNil(t, built)
		return built
	}

	p := run("hi")
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4o-mini", p.Model())

	p = run("-p", "anthropic", "hi")
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, llm.DefaultModels["anthropic"], p.Model())

	p = run("-p", "claude", "-m", "claude-haiku-4-5", "hi")
	assert.Equal(t, "anthropic", p.Name())
	assert.Equal(t, "claude-haiku-4-5", p.Model())

	p = run("-m", "gpt-4.1", "hi")
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4.1", p.Model())
}
