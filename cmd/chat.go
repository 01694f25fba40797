package cmd

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/toolagent/internal/agent"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/prompts"
)

var (
	chatProvider      string
	chatModel         string
	chatSystemPrompt  string
	chatMaxIterations int
	chatStream        bool
	chatWorkspace     string
	chatCatalog       string
	chatPrompt        string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the agent a question or start an interactive session",
	Long: `Send a message to the configured model. Tools requested by the model are
executed locally against the workspace and their results fed back until the
model answers or the iteration limit is reached.

With a message argument the answer is printed and the command exits. Without
one an interactive session starts; type /reset to clear the conversation,
/history to print it and /exit to quit.

With --stream the answer is printed as it arrives. Tools are not offered to
the model in streaming mode.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "Provider name (openai, anthropic, gemini, openrouter, groq)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model identifier")
	chatCmd.Flags().StringVar(&chatSystemPrompt, "system", "", "System prompt")
	chatCmd.Flags().IntVar(&chatMaxIterations, "max-iterations", 0, "Maximum model round trips per message")
	chatCmd.Flags().BoolVarP(&chatStream, "stream", "s", false, "Stream the answer")
	chatCmd.Flags().StringVarP(&chatWorkspace, "workspace", "w", ".", "Root directory for the file tools")
	chatCmd.Flags().StringVar(&chatCatalog, "tools-file", "", "YAML tool catalog overriding the built-in tool definitions")
	chatCmd.Flags().StringVar(&chatPrompt, "prompt", prompts.DefaultName, "Named system prompt template (see 'toolagent prompts')")
}

func runChat(cmd *cobra.Command, args []string) error {
	// --provider and --model go to the factory, not the config, so the
	// configured model only applies to the configured provider
	overrides := map[string]any{}
	if chatSystemPrompt != "" {
		overrides["agent.system_prompt"] = chatSystemPrompt
	}
	if chatMaxIterations > 0 {
		overrides["agent.max_iterations"] = chatMaxIterations
	}

	cc, err := InitCommand(overrides)
	if err != nil {
		return HandleCommandError(cmd.ErrOrStderr(), err)
	}
	defer func() { _ = cc.Logger.Sync() }()

	a, err := newChatAgent(cc)
	if err != nil {
		return HandleCommandError(cmd.ErrOrStderr(), err)
	}

	session := &chatSession{
		agent:  a,
		stream: chatStream,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		logger: cc.Logger,
	}

	if len(args) > 0 {
		return HandleCommandError(cmd.ErrOrStderr(), session.ask(cmd.Context(), strings.Join(args, " ")))
	}
	return HandleCommandError(cmd.ErrOrStderr(), session.repl(cmd.Context(), cmd.InOrStdin()))
}

func newChatAgent(cc *CommandContext) (*agent.Agent, error) {
	name := chatProvider
	if name == "" {
		name = cc.Config.Provider
	}
	provider, err := newProvider(cc.Config, cc.Logger, name, chatModel)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(chatWorkspace, chatCatalog)
	if err != nil {
		return nil, err
	}

	mgr, err := loadPrompts(cc.Config)
	if err != nil {
		return nil, err
	}
	systemPrompt, err := mgr.Render(chatPrompt, prompts.Vars{
		Provider:  provider.Name(),
		Model:     provider.Model(),
		Workspace: chatWorkspace,
		Tools:     registry.Names(),
	})
	if err != nil {
		return nil, err
	}

	cc.Logger.Info("Starting chat",
		logging.Provider(provider.Name()),
		logging.Model(provider.Model()),
		logging.String("prompt", chatPrompt),
		logging.String("prompt_source", mgr.GetSource(chatPrompt)),
		logging.Strings("tools", registry.Names()),
	)

	agentCfg := agent.ConfigFrom(cc.Config.Agent)
	agentCfg.SystemPrompt = systemPrompt
	return agent.New(provider, registry, cc.Logger, agentCfg), nil
}

// chatSession prints answers for one agent
type chatSession struct {
	agent  *agent.Agent
	stream bool
	out    io.Writer
	errOut io.Writer
	logger *logging.Logger
}

func (s *chatSession) ask(ctx context.Context, input string) error {
	if !s.stream {
		answer, err := s.agent.ProcessQuery(ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, answer)
		return nil
	}

	result, err := s.agent.ProcessQueryStream(ctx, input)
	if err != nil {
		return err
	}

	// The provider may have answered without streaming
	if !result.IsStream() {
		fmt.Fprintln(s.out, result.Response.Content)
		s.agent.RecordReply(result.Response.Content)
		return nil
	}

	stream := result.Stream
	defer func() { _ = stream.Close() }()
	for stream.Next() {
		fmt.Fprint(s.out, stream.Current().Delta)
	}
	fmt.Fprintln(s.out)
	if err := stream.Err(); err != nil {
		return err
	}
	s.agent.RecordReply(stream.Text())
	return nil
}

func (s *chatSession) repl(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Fprint(s.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.agent.Reset()
			fmt.Fprintln(s.out, "Conversation cleared.")
		case "/history":
			printHistory(s.out, s.agent.History())
		default:
			if err := s.ask(ctx, line); err != nil {
				if isFatal(err) || ctx.Err() != nil {
					return err
				}
				// Keep the session alive after a failed request
				reportError(s.errOut, err)
				s.logger.Warn("Chat request failed", logging.Error(err))
			}
		}
		fmt.Fprint(s.out, "> ")
	}
	return scanner.Err()
}

func printHistory(w io.Writer, history []llm.Message) {
	for _, msg := range history {
		switch {
		case msg.ToolName != "":
			fmt.Fprintf(w, "[%s %s] %s\n", msg.Role, msg.ToolName, msg.Content)
		default:
			fmt.Fprintf(w, "[%s] %s\n", msg.Role, msg.Content)
		}
	}
}

func reportError(w io.Writer, err error) {
	var userErr interface{ GetUserMessage() string }
	if stderrors.As(err, &userErr) {
		fmt.Fprintf(w, "%s\n", userErr.GetUserMessage())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}
