package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Describe the document",
	Long: `Prints the variables, controls, bindings, plugins and handler trees of the document as markdown, rendered when stdout is a terminal.
With --mermaid it prints a Mermaid flowchart of handlers, variables and controls instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file := baseOptions(cmd).File
		if mermaid, _ := cmd.Flags().GetBool("mermaid"); mermaid {
			return cli.Diagram(file, os.Stdout)
		}
		return cli.Inspect(file, os.Stdout)
	},
}

func init() {
	inspectCmd.Flags().Bool("mermaid", false, "Print a Mermaid flowchart instead of the report")
	rootCmd.AddCommand(inspectCmd)
}
