package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "weft version "+strings.TrimSpace(weft.Version)+"\n", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "validate", "inspect", "serve", "mcp", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestBaseOptions_ReadsStoreFlags(t *testing.T) {
	require.NoError(t, runCmd.ParseFlags(nil))
	require.NoError(t, runCmd.Flags().Set("store", "sqlite"))
	require.NoError(t, runCmd.Flags().Set("store-dsn", "x.db"))
	t.Cleanup(func() {
		_ = runCmd.Flags().Set("store", "file")
		_ = runCmd.Flags().Set("store-dsn", "")
	})

	opts := baseOptions(runCmd)
	assert.Equal(t, "sqlite", opts.Store)
	assert.Equal(t, "x.db", opts.StoreDSN)
	assert.Equal(t, "app.yaml", opts.File)
}

func TestBaseOptions_ReadsKeysAndTools(t *testing.T) {
	require.NoError(t, serveCmd.ParseFlags(nil))
	require.NoError(t, serveCmd.Flags().Set("tools", "tools.yaml"))
	t.Cleanup(func() { _ = serveCmd.Flags().Set("tools", "") })
	t.Setenv(cli.EnvStateKey, "active")
	t.Setenv(cli.EnvFallbackKeys, "old1,old2")

	opts := baseOptions(serveCmd)
	assert.Equal(t, "tools.yaml", opts.Tools)
	assert.Equal(t, "active", opts.EncryptionKey)
	assert.Equal(t, []string{"old1", "old2"}, opts.FallbackKeys)

	assert.Empty(t, baseOptions(validateCmd).Tools)
}
