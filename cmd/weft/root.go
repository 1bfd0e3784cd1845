package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft is a reactive runtime for declarative UI applications",
	Long: `weft loads an application document (state, controls, bindings, plugins and
handlers) and runs its handlers against a headless control tree.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "app.yaml", "Application document")
	rootCmd.PersistentFlags().Bool("debug", false, "Log to stderr at debug level")
}

// baseOptions reads the persistent flags and the store flags when the
// command defines them.
func baseOptions(cmd *cobra.Command) cli.Options {
	file, _ := cmd.Flags().GetString("file")
	debug, _ := cmd.Flags().GetBool("debug")
	opts := cli.Options{File: file, Debug: debug}
	if f := cmd.Flags().Lookup("watch"); f != nil {
		opts.Watch, _ = cmd.Flags().GetBool("watch")
	}
	if f := cmd.Flags().Lookup("store"); f != nil {
		opts.Store, _ = cmd.Flags().GetString("store")
		opts.StoreDSN, _ = cmd.Flags().GetString("store-dsn")
		opts.Mask, _ = cmd.Flags().GetStringSlice("mask")
		opts.EncryptionKey = os.Getenv(cli.EnvStateKey)
		if keys := os.Getenv(cli.EnvFallbackKeys); keys != "" {
			opts.FallbackKeys = strings.Split(keys, ",")
		}
	}
	if f := cmd.Flags().Lookup("tools"); f != nil {
		opts.Tools, _ = cmd.Flags().GetString("tools")
	}
	return opts
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", cli.StoreFile, "Snapshot backend: file, memory, sqlite or redis")
	cmd.Flags().String("store-dsn", "", "Snapshot directory, sqlite path or redis address")
	cmd.Flags().StringSlice("mask", nil, "Regexp of variable names masked in saved snapshots (repeatable)")
}

func addToolsFlag(cmd *cobra.Command) {
	cmd.Flags().String("tools", "", "Tools file (YAML or JSON) of allow-listed programs exposed as commands")
}
