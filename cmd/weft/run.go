package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run [handler...]",
	Short: "Run handlers and print the resulting state",
	Long: `Loads the document, runs the given handlers in order and prints the state.
With --watch the document is reloaded and the handlers run again on every change.
With --interactive commands are then read from stdin (JSON-Lines with --json).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := baseOptions(cmd)
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Session, _ = cmd.Flags().GetString("session")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.Interactive, _ = cmd.Flags().GetBool("interactive")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		if opts.Interactive {
			return cli.Interactive(sigCtx, opts, args, os.Stdin, os.Stdout)
		}
		if opts.Watch {
			return cli.RunWatch(sigCtx, opts, args, os.Stdout)
		}
		return cli.Run(sigCtx, opts, args, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("watch", "w", false, "Reload and run again when the document changes")
	runCmd.Flags().Bool("json", false, "Print the state as JSON")
	runCmd.Flags().BoolP("interactive", "i", false, "Read commands from stdin after running the handlers")
	runCmd.Flags().StringP("session", "s", "", "Restore state from and save it to this session")
	runCmd.Flags().Bool("fresh", false, "Discard the saved session before running")
	addStoreFlags(runCmd)
	addToolsFlag(runCmd)
}
