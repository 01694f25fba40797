package agent

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/llmtypes"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/tools"
)

// Config controls one agent's turn loop
type Config struct {
	SystemPrompt        string
	MaxIterations       int // model round trips per query
	PartialAnswerPrefix string
	ToolChoice          llmtypes.ToolChoice
	MaxTokens           int      // 0 uses the vendor default
	Temperature         *float64 // nil uses the vendor default
	MaxToolResultBytes  int      // 0 disables truncation
}

// DefaultConfig returns the built-in loop settings
func DefaultConfig() Config {
	return Config{
		SystemPrompt:        config.DefaultSystemPrompt,
		MaxIterations:       config.DefaultMaxIterations,
		PartialAnswerPrefix: config.DefaultPartialAnswerPrefix,
		ToolChoice:          llmtypes.ToolChoiceAuto,
		MaxToolResultBytes:  config.DefaultMaxToolResultBytes,
	}
}

// ConfigFrom converts the loaded agent settings
func ConfigFrom(c config.AgentConfig) Config {
	var temperature *float64
	if c.Temperature != nil {
		t := *c.Temperature
		temperature = &t
	}
	return Config{
		SystemPrompt:        c.SystemPrompt,
		MaxIterations:       c.MaxIterations,
		PartialAnswerPrefix: c.PartialAnswerPrefix,
		ToolChoice:          llmtypes.ToolChoice(c.ToolChoice),
		MaxTokens:           c.MaxTokens,
		Temperature:         temperature,
		MaxToolResultBytes:  c.MaxToolResultBytes,
	}
}

// Agent drives one conversation: it sends the history to the provider,
// executes requested tools in model order and repeats until the model
// answers without tool calls or the iteration bound is hit.
//
// An Agent is not safe for concurrent use. The registry may be shared.
type Agent struct {
	provider   llm.Provider
	registry   *tools.Registry
	executor   *tools.Executor
	baseLogger *logging.Logger
	logger     *logging.Logger
	cfg        Config

	history []llm.Message
	state   State
	rounds  int // tool rounds recorded so far
}

// New creates an agent whose history starts with the system prompt
func New(provider llm.Provider, registry *tools.Registry, logger *logging.Logger, cfg Config) *Agent {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = config.DefaultSystemPrompt
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = config.DefaultMaxIterations
	}
	if cfg.PartialAnswerPrefix == "" {
		cfg.PartialAnswerPrefix = config.DefaultPartialAnswerPrefix
	}

	a := &Agent{
		provider:   provider,
		registry:   registry,
		executor:   tools.NewExecutor(registry, logger),
		baseLogger: logger.Named("agent"),
		cfg:        cfg,
	}
	a.Reset()
	return a
}

// Reset clears the conversation back to the system prompt and starts a
// new conversation ID in the logs
func (a *Agent) Reset() {
	a.history = []llm.Message{{Role: llmtypes.RoleSystem, Content: a.cfg.SystemPrompt}}
	a.state = StateAwaitingUserInput
	a.logger = a.baseLogger.With(logging.ConversationID(uuid.NewString()))
}

// History returns a copy of the conversation so far
func (a *Agent) History() []llm.Message {
	return append([]llm.Message(nil), a.history...)
}

// State returns where the last query ended
func (a *Agent) State() State {
	return a.state
}

// ProcessQuery appends input and runs the turn loop to completion. Hitting
// the iteration bound is not an error: the partial answer is returned with
// the configured prefix. Only provider failures are returned as errors, and
// the answer then carries the error text so it is still printable; tool
// failures are fed back to the model.
func (a *Agent) ProcessQuery(ctx context.Context, input string) (string, error) {
	a.history = append(a.history, llm.Message{Role: llmtypes.RoleUser, Content: input})
	definitions := a.registry.ListDefinitions()

	var lastContent string
	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		a.transition(StateRequestingCompletion, logging.Int("iteration", iteration))

		resp, err := a.complete(ctx, definitions)
		if err != nil {
			a.transition(StateAwaitingUserInput)
			err = fmt.Errorf("LLM call failed: %w", err)
			return "Error: " + err.Error(), err
		}

		if len(resp.ToolCalls) == 0 {
			a.history = append(a.history, llm.Message{Role: llmtypes.RoleAssistant, Content: resp.Content})
			a.transition(StateDone)
			return resp.Content, nil
		}
		if resp.Content != "" {
			lastContent = resp.Content
		}

		a.transition(StateExecutingTools, logging.Int("tool_calls", len(resp.ToolCalls)))
		a.executeTools(ctx, resp.Content, resp.ToolCalls)
	}

	partial := a.cfg.PartialAnswerPrefix + lastContent
	a.history = append(a.history, llm.Message{Role: llmtypes.RoleAssistant, Content: partial})
	a.logger.Warn("Maximum iterations reached, returning partial answer",
		logging.Int("max_iterations", a.cfg.MaxIterations),
	)
	a.transition(StateIterationLimitReached)
	return partial, nil
}

// ProcessQueryStream appends input and hands back the provider's reply
// without running tools. Tools are not offered on this path. Callers should
// pass the final text to RecordReply once they have consumed the stream.
func (a *Agent) ProcessQueryStream(ctx context.Context, input string) (llm.ChatResult, error) {
	a.history = append(a.history, llm.Message{Role: llmtypes.RoleUser, Content: input})
	a.transition(StateRequestingCompletion, logging.Bool("stream", true))

	result, err := a.provider.Chat(ctx, llm.ChatRequest{
		Messages:    a.History(),
		Stream:      true,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	})
	if err != nil {
		a.transition(StateAwaitingUserInput)
		return llm.ChatResult{}, fmt.Errorf("LLM call failed: %w", err)
	}
	a.transition(StateDone)
	return result, nil
}

// RecordReply appends an assistant answer obtained outside ProcessQuery,
// typically the text of a consumed stream
func (a *Agent) RecordReply(content string) {
	a.history = append(a.history, llm.Message{Role: llmtypes.RoleAssistant, Content: content})
}

func (a *Agent) complete(ctx context.Context, definitions []llm.ToolDefinition) (llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Messages:    a.History(),
		Tools:       definitions,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}
	if len(definitions) > 0 {
		req.ToolChoice = a.cfg.ToolChoice
	}

	result, err := a.provider.Chat(ctx, req)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	resp, err := result.Collect()
	if err != nil {
		return llm.ChatResponse{}, err
	}

	fields := []logging.Field{
		logging.Provider(a.provider.Name()),
		logging.String("finish_reason", string(resp.FinishReason)),
		logging.Int("tool_calls", len(resp.ToolCalls)),
	}
	if resp.Usage.TotalTokens != nil {
		fields = append(fields, logging.Int("total_tokens", *resp.Usage.TotalTokens))
	}
	a.logger.Info("LLM response received", fields...)
	return resp, nil
}

// executeTools runs each call in the order given and appends one tool
// message per call, all tagged with a new round
func (a *Agent) executeTools(ctx context.Context, content string, calls []llm.NormalizedToolCall) {
	a.rounds++
	for i, call := range calls {
		a.logger.Info("Executing tool",
			logging.Tool(call.ToolName),
			logging.CallID(call.ID),
		)

		res := a.executor.ExecuteCall(ctx, call)
		if res.Failed() {
			a.logger.Warn("Tool call failed",
				logging.Tool(call.ToolName),
				logging.String("kind", res.Error.Kind),
				logging.String("error", res.Error.Message),
			)
		}

		a.history = append(a.history, llm.Message{
			Role:       llmtypes.RoleTool,
			Content:    truncateToolResult(res.Content(), a.cfg.MaxToolResultBytes),
			ToolCallID: call.ID,
			ToolName:   call.ToolName,
			ToolArgs:   call.Arguments,
			ToolRaw:    call.Raw,
			ToolRound:  a.rounds,
			RoundText:  roundText(i, content),
		})
	}
}

func roundText(i int, content string) string {
	if i > 0 {
		return ""
	}
	return content
}

func (a *Agent) transition(to State, fields ...logging.Field) {
	from := a.state
	a.state = to
	fields = append(fields,
		logging.String("from", from.String()),
		logging.String("to", to.String()),
	)
	a.logger.Debug("Agent state changed", fields...)
}

// truncateToolResult cuts content to at most limit bytes plus a marker
func truncateToolResult(content string, limit int) string {
	if limit <= 0 || len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + fmt.Sprintf("\n\n[TRUNCATED - tool result exceeded %d bytes]", limit)
}
