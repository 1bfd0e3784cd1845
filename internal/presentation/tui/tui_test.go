package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner_IncludesVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "0.1.0\n")
	assert.Contains(t, buf.String(), "v0.1.0")
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "\n"), len(bannerLines))
}

func TestSystemMessage(t *testing.T) {
	var buf bytes.Buffer
	SystemMessage(&buf, "watching %s", "app.yaml")
	assert.Contains(t, buf.String(), "watching app.yaml")
	assert.Contains(t, buf.String(), ">>>")
}

func TestNewRenderer_KeepsText(t *testing.T) {
	out, err := NewRenderer()("# Title\n\nbody text")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body text")
}
