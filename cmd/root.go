package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/toolagent/internal/errors"
)

var (
	configFile  string
	debugFlag   bool
	verboseFlag bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "toolagent",
	Short: "Tool-calling agent for OpenAI, Anthropic and Gemini models",
	Long: `Chat with an LLM that can call tools.

Toolagent talks to OpenAI-compatible (OpenAI, OpenRouter, Groq), Anthropic and
Gemini models through one normalized interface. Tool calls requested by the
model are executed locally and their results fed back until the model answers.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the error's exit code
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps err to the process exit status. Application errors have
// already been reported by HandleCommandError.
func exitCode(err error) int {
	var taErr interface{ GetExitCode() errors.ExitCode }
	if stderrors.As(err, &taErr) {
		return taErr.GetExitCode().Int()
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return errors.ExitGeneralError.Int()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ~/.toolagent.yaml and ./.toolagent/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show log output on the console")
}
