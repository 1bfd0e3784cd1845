package registry_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/stretchr/testify/assert"
)

func TestCommands_CaseInsensitive(t *testing.T) {
	r := registry.NewCommands()
	r.Register("ShowToast", func(context.Context, *domain.HandlerNode, any) bool { return true })

	found, ok := r.Execute(context.Background(), "showtoast", domain.NewNode("showtoast", nil), nil)
	assert.True(t, found)
	assert.True(t, ok)
	assert.True(t, r.Has("SHOWTOAST"))
	assert.Equal(t, []string{"ShowToast"}, r.Names())
}

func TestCommands_ReplaceSilently(t *testing.T) {
	r := registry.NewCommands()
	var calls []string
	r.Register("beep", func(context.Context, *domain.HandlerNode, any) bool {
		calls = append(calls, "old")
		return true
	})
	r.Register("Beep", func(context.Context, *domain.HandlerNode, any) bool {
		calls = append(calls, "new")
		return true
	})

	r.Execute(context.Background(), "beep", nil, nil)
	assert.Equal(t, []string{"new"}, calls)
	assert.Len(t, r.Names(), 1)
}

func TestCommands_PanicIsContained(t *testing.T) {
	r := registry.NewCommands()
	r.Register("explode", func(context.Context, *domain.HandlerNode, any) bool { panic("boom") })

	var found, ok bool
	assert.NotPanics(t, func() {
		found, ok = r.Execute(context.Background(), "explode", nil, nil)
	})
	assert.True(t, found)
	assert.False(t, ok)
}

func TestCommands_NotFound(t *testing.T) {
	r := registry.NewCommands()
	found, ok := r.Execute(context.Background(), "nope", nil, nil)
	assert.False(t, found)
	assert.False(t, ok)
}

func TestCommands_UnregisterOwner(t *testing.T) {
	r := registry.NewCommands()
	noop := func(context.Context, *domain.HandlerNode, any) bool { return true }
	r.RegisterOwned("greeter", "hello", noop)
	r.RegisterOwned("greeter", "bye", noop)
	r.Register("host", noop)

	assert.Equal(t, 2, r.UnregisterOwner("greeter"))
	assert.Equal(t, []string{"host"}, r.Names())
}

func TestFunctions_Call(t *testing.T) {
	r := registry.NewFunctions()
	r.Register("Upper", func(args string) (string, error) { return strings.ToUpper(args), nil })

	out, ok := r.Call("upper", "abc")
	assert.True(t, ok)
	assert.Equal(t, "ABC", out)

	_, ok = r.Call("lower", "abc")
	assert.False(t, ok)
}

func TestFunctions_FailuresBecomeFlags(t *testing.T) {
	r := registry.NewFunctions()
	r.Register("fails", func(string) (string, error) { return "", errors.New("bad input") })
	r.Register("panics", func(string) (string, error) { panic("boom") })

	_, ok := r.Call("fails", "")
	assert.False(t, ok)

	assert.NotPanics(t, func() {
		_, ok = r.Call("panics", "")
	})
	assert.False(t, ok)
}

func TestFold_UnicodeCase(t *testing.T) {
	assert.Equal(t, registry.Fold("STRASSE"), registry.Fold("strasse"))
}
