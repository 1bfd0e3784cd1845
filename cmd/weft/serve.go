package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the devtools HTTP server",
	Long:  `Exposes state, handlers, plugins, cache and bindings over HTTP, streams state changes on /events and serves prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return cli.Serve(sigCtx, baseOptions(cmd), ":"+port, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the document when it changes")
	addStoreFlags(serveCmd)
	addToolsFlag(serveCmd)
}
