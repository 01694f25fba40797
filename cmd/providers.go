package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/tools"
)

// providersCmd lists the supported providers and their credential status
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return HandleCommandError(cmd.ErrOrStderr(), err)
		}
		return listProviders(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func listProviders(w io.Writer, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tDEFAULT MODEL\tCREDENTIALS\tSCHEMA FORMAT")
	for _, name := range llm.SupportedProviders() {
		status := "configured"
		if _, err := cfg.Credentials(name); err != nil {
			status = "missing"
		}
		marker := ""
		if name == cfg.Provider {
			marker = " (default)"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", name, marker, llm.DefaultModels[name], status, tools.FormatForProvider(name))
	}
	return tw.Flush()
}
