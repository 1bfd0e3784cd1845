package builtin_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/plugin/builtin"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager   *plugin.Manager
	commands  *registry.Commands
	functions *registry.Functions
	state     *state.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		commands:  registry.NewCommands(),
		functions: registry.NewFunctions(),
		state:     state.New(),
	}
	f.manager = plugin.NewManager(f.commands, f.functions, plugin.WithVariables(f.state))
	return f
}

func (f *fixture) call(t *testing.T, name, args string) string {
	t.Helper()
	out, ok := f.functions.Call(name, args)
	require.True(t, ok, "%s(%s) failed", name, args)
	return out
}

func TestRegister_IsLazy(t *testing.T) {
	f := newFixture(t)
	builtin.Register(f.manager)

	assert.Equal(t, []string{"datetime", "math", "text"}, f.manager.Available())
	assert.Equal(t, builtin.Names(), f.manager.Available())
	assert.Empty(t, f.manager.List())
	assert.False(t, f.functions.Has("abs"))

	_, err := f.manager.Ensure(context.Background(), builtin.MathName)
	require.NoError(t, err)
	assert.True(t, f.functions.Has("abs"))
	assert.False(t, f.functions.Has("upper"))
}

func TestMath_Functions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(context.Background(), builtin.NewMath()))

	assert.Equal(t, "3", f.call(t, "abs", "-3"))
	assert.Equal(t, "3.14", f.call(t, "round", "3.14159, 2"))
	assert.Equal(t, "4", f.call(t, "round", "3.6"))
	assert.Equal(t, "1", f.call(t, "min", "4,1,7"))
	assert.Equal(t, "7", f.call(t, "MAX", "4,1,7"))
	assert.Equal(t, "3", f.call(t, "sqrt", "9"))
	assert.Equal(t, "8", f.call(t, "pow", "2,3"))
	assert.Equal(t, "2", f.call(t, "floor", "2.9"))

	_, ok := f.functions.Call("sqrt", "-1")
	assert.False(t, ok)
	_, ok = f.functions.Call("abs", "x")
	assert.False(t, ok)
}

func TestMath_Clamp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.manager.Register(ctx, builtin.NewMath()))

	f.state.Set(ctx, "v", int64(150))
	found, ok := f.commands.Execute(ctx, "Clamp", domain.NewNode("Clamp", map[string]string{
		"Variable": "v", "Min": "0", "Max": "100",
	}), nil)
	require.True(t, found)
	assert.True(t, ok)
	v, _ := f.state.Get("v")
	assert.Equal(t, int64(100), v)

	f.state.Set(ctx, "w", "abc")
	_, ok = f.commands.Execute(ctx, "clamp", domain.NewNode("Clamp", map[string]string{"Variable": "w"}), nil)
	assert.False(t, ok)
}

func TestText_Functions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.manager.Register(context.Background(), builtin.NewText()))

	assert.Equal(t, "HELLO", f.call(t, "upper", "hello"))
	assert.Equal(t, "hello", f.call(t, "lower", "HeLLo"))
	assert.Equal(t, "Hello World", f.call(t, "title", "hello world"))
	assert.Equal(t, "x", f.call(t, "trim", "  x  "))
	assert.Equal(t, "4", f.call(t, "len", "café"))
	assert.Equal(t, "ababab", f.call(t, "repeat", "ab,3"))

	_, ok := f.functions.Call("repeat", "ab")
	assert.False(t, ok)
}

func TestDateTime_FixedClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	require.NoError(t, f.manager.Register(ctx, builtin.NewDateTimeWithClock(func() time.Time { return at })))

	assert.Equal(t, "2024-03-05T14:30:00Z", f.call(t, "now", ""))
	assert.Equal(t, "2024-03-05", f.call(t, "today", ""))
	assert.Equal(t, "14:30", f.call(t, "now", "15:04"))
	assert.Equal(t, "1709649000", f.call(t, "unix", ""))

	_, ok := f.commands.Execute(ctx, "stamp", domain.NewNode("Stamp", map[string]string{
		"Variable": "savedAt", "Format": "date",
	}), nil)
	require.True(t, ok)
	v, _ := f.state.Get("savedAt")
	assert.Equal(t, "2024-03-05", v)
}

func TestUnloadRemovesContributions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	builtin.Register(f.manager)
	_, err := f.manager.Ensure(ctx, builtin.TextName)
	require.NoError(t, err)

	require.NoError(t, f.manager.Unload(ctx, builtin.TextName))
	assert.Empty(t, f.functions.Names())
}
