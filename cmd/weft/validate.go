package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the document for consistency",
	Long:  `Reports duplicate controls, bindings to unknown controls, calls to unknown handlers and malformed binding expressions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Validate(baseOptions(cmd).File, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
