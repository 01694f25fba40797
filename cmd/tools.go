package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/toolagent/internal/tools"
)

var (
	toolsWorkspace string
	toolsCatalog   string
	schemaFormat   string
	schemaOutput   string
)

// toolsCmd groups tool inspection commands
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tools offered to the model",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry(toolsWorkspace, toolsCatalog)
		if err != nil {
			return HandleCommandError(cmd.ErrOrStderr(), err)
		}
		return listTools(cmd.OutOrStdout(), reg)
	},
}

var toolsSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print tool schemas in a vendor format",
	Long: `Print the registered tool definitions as sent to a vendor.

Formats:
  native-functions               OpenAI-compatible function tools
  anthropic-tools                Anthropic tools with input_schema
  generic-function-declarations  Gemini function declarations
  all                            every format, keyed by name (default)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry(toolsWorkspace, toolsCatalog)
		if err != nil {
			return HandleCommandError(cmd.ErrOrStderr(), err)
		}
		return writeSchema(cmd.OutOrStdout(), reg, schemaFormat, schemaOutput)
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsSchemaCmd)

	toolsCmd.PersistentFlags().StringVarP(&toolsWorkspace, "workspace", "w", ".", "Root directory for the file tools")
	toolsCmd.PersistentFlags().StringVar(&toolsCatalog, "tools-file", "", "YAML tool catalog overriding the built-in tool definitions")
	toolsSchemaCmd.Flags().StringVarP(&schemaFormat, "format", "f", "all", "Schema format")
	toolsSchemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "json", "Output encoding (json or yaml)")
}

func listTools(w io.Writer, reg *tools.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, def := range reg.ListDefinitions() {
		desc, _, _ := strings.Cut(def.Description, "\n")
		fmt.Fprintf(tw, "%s\t%s\n", def.Name, desc)
	}
	return tw.Flush()
}

func writeSchema(w io.Writer, reg *tools.Registry, format, output string) error {
	var doc any
	if strings.EqualFold(format, "all") {
		all := make(map[string]any, len(tools.Formats))
		for f, exported := range tools.ExportAll(reg.ListDefinitions()) {
			all[string(f)] = exported
		}
		doc = all
	} else {
		f, err := tools.ParseFormat(format)
		if err != nil {
			return err
		}
		exported, err := reg.ExportSchema(f)
		if err != nil {
			return err
		}
		doc = exported
	}

	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output encoding %q (want json or yaml)", output)
	}
}
