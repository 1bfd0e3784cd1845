package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/markup"
)

func newServer(t *testing.T) (*Server, *weft.Engine) {
	t.Helper()
	doc, err := markup.Parse([]byte(`
variables: {count: 2}
controls:
  - {id: label, kind: Label, properties: {Text: "{Binding count}"}}
handlers:
  double: [{op: Multiply, Variable: count, Value: 2}]
  reset: [{op: Set, Variable: count, Value: 0}]
`))
	require.NoError(t, err)
	eng := weft.New()
	require.NoError(t, eng.Load(context.Background(), doc))
	return NewServer(eng), eng
}

func TestTools_ExecuteAndState(t *testing.T) {
	ctx := context.Background()
	s, _ := newServer(t)

	res, err := s.handleExecute(ctx, mcp.CallToolRequest{}, executeArgs{Name: "double"})
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, int64(4), res.State["count"])

	res, err = s.handleExecute(ctx, mcp.CallToolRequest{}, executeArgs{Name: "ghost"})
	require.NoError(t, err)
	assert.False(t, res.Executed)

	st, err := s.handleGetState(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.State["count"])
}

func TestTools_SetVariableParsesJSON(t *testing.T) {
	ctx := context.Background()
	s, eng := newServer(t)

	tests := []struct {
		raw  string
		want any
	}{
		{"7", int64(7)},
		{"2.5", 2.5},
		{"true", true},
		{`["a", 1]`, []any{"a", int64(1)}},
		{"plain text", "plain text"},
		{"1 2", "1 2"},
	}
	for _, tt := range tests {
		_, err := s.handleSetVariable(ctx, mcp.CallToolRequest{}, setVariableArgs{Name: "v", Value: tt.raw})
		require.NoError(t, err)
		assert.Equal(t, tt.want, eng.StateSnapshot()["v"], tt.raw)
	}

	_, err := s.handleSetVariable(ctx, mcp.CallToolRequest{}, setVariableArgs{Value: "1"})
	assert.Error(t, err)
}

func TestTools_Listings(t *testing.T) {
	ctx := context.Background()
	s, eng := newServer(t)
	eng.Cache().Set("k", 1, 0)

	handlers, err := s.handleListHandlers(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"double", "reset"}, handlers.Items)

	bindings, err := s.handleListBindings(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, bindings.Bindings, 1)
	assert.Equal(t, "count", bindings.Bindings[0].Key)

	stats, err := s.handleCacheStats(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
}

func TestResource_State(t *testing.T) {
	s, _ := newServer(t)

	contents, err := s.readState(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, StateURI, text.URI)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &st))
	assert.Equal(t, float64(2), st["count"])
}
