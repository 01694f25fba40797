package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/prompts"
)

// promptsCmd lists the named system prompts
var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List named system prompts",
	Long: `List the system prompt templates available to 'chat --prompt'.

Prompts are YAML files of name: template pairs, read from
~/.toolagent/prompts and then ./.toolagent/prompts (project prompts override
global ones). The configured agent.system_prompt is available as "default".
Templates may use {{.Provider}}, {{.Model}}, {{.Workspace}} and
{{join .Tools ", "}}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return HandleCommandError(cmd.ErrOrStderr(), err)
		}
		mgr, err := loadPrompts(cfg)
		if err != nil {
			return HandleCommandError(cmd.ErrOrStderr(), err)
		}
		return listPrompts(cmd.OutOrStdout(), mgr)
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}

func loadPrompts(cfg *config.Config) (*prompts.Manager, error) {
	var globalDir string
	if home, err := os.UserHomeDir(); err == nil {
		globalDir = filepath.Join(home, ".toolagent", "prompts")
	}
	return prompts.NewManagerWithOverrides(cfg.Agent.SystemPrompt, globalDir, filepath.Join(".toolagent", "prompts"))
}

func listPrompts(w io.Writer, mgr *prompts.Manager) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSOURCE\tPROMPT")
	for _, name := range mgr.Names() {
		text, _ := mgr.Get(name)
		first, _, _ := strings.Cut(text, "\n")
		if len(first) > 60 {
			first = first[:57] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, mgr.GetSource(name), first)
	}
	return tw.Flush()
}
