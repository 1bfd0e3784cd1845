package memory_test

import (
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyTable_RegisterValidates(t *testing.T) {
	pt := memory.NewPropertyTable()

	require.NoError(t, pt.Register("Gauge", "Level", memory.TypeNumber))
	assert.ErrorIs(t, pt.Register("gauge", "LEVEL", memory.TypeString), memory.ErrDuplicateProperty)
	assert.ErrorIs(t, pt.Register("Gauge", "Color", memory.PropertyType(42)), memory.ErrInvalidPropertyType)
	assert.Error(t, pt.Register("", "Level", memory.TypeString))

	typ, ok := pt.Lookup("GAUGE", "level")
	require.True(t, ok)
	assert.Equal(t, memory.TypeNumber, typ)
}

func TestTree_TypedSetters(t *testing.T) {
	tree := memory.NewTree()
	_, err := tree.Add("bar", "ProgressBar", "", map[string]any{"Maximum": "100"})
	require.NoError(t, err)
	_, err = tree.Add("label", "Label", "", nil)
	require.NoError(t, err)

	bar, ok := tree.Locate("bar")
	require.True(t, ok)
	require.NoError(t, tree.SetProperty(bar, "Value", "42.5"))
	require.NoError(t, tree.SetProperty(bar, "visible", "false"))

	v, _ := tree.GetProperty(bar, "value")
	assert.Equal(t, 42.5, v)
	v, _ = tree.GetProperty(bar, "Maximum")
	assert.Equal(t, int64(100), v)
	v, _ = tree.GetProperty(bar, "Visible")
	assert.Equal(t, false, v)

	assert.ErrorIs(t, tree.SetProperty(bar, "Value", "lots"), memory.ErrPropertyValue)

	label, _ := tree.Locate("label")
	require.NoError(t, tree.SetProperty(label, "Text", int64(7)))
	v, _ = tree.GetProperty(label, "Text")
	assert.Equal(t, "7", v)

	assert.ErrorIs(t, tree.SetProperty(label, "Value", 1), domain.ErrUnknownProperty)
}

func TestTree_AddRejectsBadInput(t *testing.T) {
	tree := memory.NewTree()
	_, err := tree.Add("a", "Label", "", nil)
	require.NoError(t, err)

	_, err = tree.Add("a", "Label", "", nil)
	assert.Error(t, err)
	_, err = tree.Add("b", "Label", "", map[string]any{"Bogus": 1})
	assert.ErrorIs(t, err, domain.ErrUnknownProperty)
	_, err = tree.Add("", "Label", "", nil)
	assert.Error(t, err)
}

func TestTree_RemoveCascades(t *testing.T) {
	tree := memory.NewTree()
	for _, c := range []struct{ id, parent string }{{"root", ""}, {"child", "root"}, {"grandchild", "child"}, {"other", ""}} {
		_, err := tree.Add(c.id, "Label", c.parent, nil)
		require.NoError(t, err)
	}

	assert.True(t, tree.Remove("root"))
	assert.Equal(t, []string{"other"}, tree.IDs())
	assert.False(t, tree.Remove("root"))
}

func TestTree_ListProperty(t *testing.T) {
	tree := memory.NewTree()
	_, err := tree.Add("list", "ListBox", "", map[string]any{"Items": "a, b"})
	require.NoError(t, err)

	c, _ := tree.Control("list")
	v, _ := c.Get("Items")
	assert.Equal(t, []any{"a", "b"}, v)

	require.NoError(t, tree.SetProperty(c, "Items", []any{int64(1)}))
	v, _ = c.Get("Items")
	assert.Equal(t, []any{int64(1)}, v)
}

func TestHandlers_Table(t *testing.T) {
	h, err := memory.NewHandlersFrom(map[string][]*domain.HandlerNode{
		"b": {domain.NewNode("Set", nil)},
		"a": nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, h.Names())
	root, ok := h.Handler("b")
	require.True(t, ok)
	assert.True(t, root.Is(domain.KindHandler))
	assert.Len(t, root.Children, 1)

	h.Replace(map[string]*domain.HandlerNode{"c": domain.NewNode(domain.KindHandler, nil)})
	assert.Equal(t, []string{"c"}, h.Names())
	assert.Equal(t, 1, h.Len())
}
