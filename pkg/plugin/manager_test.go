package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPlugin struct {
	plugin.Base
	mu        sync.Mutex
	loads     int
	unloads   int
	events    []string
	loadErr   error
	eventErr  error
	panicOn   string
	command   string
	result    string
	subscribe bool
	changes   int
}

func newTestPlugin(name string) *testPlugin {
	return &testPlugin{Base: plugin.Base{Meta: plugin.Info{Name: name, Version: "1.0.0"}}}
}

func (p *testPlugin) OnLoad(_ context.Context, h plugin.Host) error {
	p.mu.Lock()
	p.loads++
	p.mu.Unlock()
	if p.panicOn == "load" {
		panic("load exploded")
	}
	if p.command != "" {
		result := p.result
		h.RegisterFunction(p.command, func(string) (string, error) { return result, nil })
	}
	if p.subscribe {
		h.Subscribe(func(context.Context, state.Change) {
			p.mu.Lock()
			p.changes++
			p.mu.Unlock()
		})
	}
	return p.loadErr
}

func (p *testPlugin) OnUnload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unloads++
	if p.panicOn == "unload" {
		panic("unload exploded")
	}
	return nil
}

func (p *testPlugin) OnEvent(_ context.Context, name string, _ any) error {
	if p.panicOn == "event" {
		panic("event exploded")
	}
	p.mu.Lock()
	p.events = append(p.events, name)
	p.mu.Unlock()
	return p.eventErr
}

func newManager(opts ...plugin.Option) (*plugin.Manager, *registry.Functions) {
	fns := registry.NewFunctions()
	return plugin.NewManager(registry.NewCommands(), fns, opts...), fns
}

func TestManager_RegisterAndList(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	require.NoError(t, m.Register(ctx, newTestPlugin("a")))
	require.NoError(t, m.Register(ctx, newTestPlugin("b")))

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "b", infos[1].Name)
}

func TestManager_ReplaceUnloadsPrevious(t *testing.T) {
	ctx := context.Background()
	var events []plugin.Event
	m, fns := newManager(plugin.WithEventHandler(func(e plugin.Event) { events = append(events, e) }))

	old := newTestPlugin("greeter")
	old.command, old.result = "greet", "old"
	require.NoError(t, m.Register(ctx, old))

	replacement := newTestPlugin("greeter")
	replacement.command, replacement.result = "greet", "new"
	require.NoError(t, m.Register(ctx, replacement))

	assert.Equal(t, 1, old.unloads)
	assert.Len(t, m.List(), 1)
	out, ok := fns.Call("greet", "")
	require.True(t, ok)
	assert.Equal(t, "new", out)

	var types []plugin.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []plugin.EventType{plugin.EventLoaded, plugin.EventUnloaded, plugin.EventReplaced, plugin.EventLoaded}, types)
}

func TestManager_PanickingUnloadStillReplaces(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	old := newTestPlugin("x")
	old.panicOn = "unload"
	require.NoError(t, m.Register(ctx, old))

	assert.NoError(t, m.Register(ctx, newTestPlugin("x")))
	assert.Len(t, m.List(), 1)
}

func TestManager_FailedLoadIsNotRegistered(t *testing.T) {
	ctx := context.Background()
	m, fns := newManager()

	bad := newTestPlugin("bad")
	bad.command = "leak"
	bad.loadErr = errors.New("missing config")
	err := m.Register(ctx, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing config")

	panicky := newTestPlugin("panicky")
	panicky.panicOn = "load"
	assert.Error(t, m.Register(ctx, panicky))

	assert.Empty(t, m.List())
	assert.False(t, fns.Has("leak"), "contributions of a failed load are dropped")
}

func TestManager_UnloadDropsContributions(t *testing.T) {
	ctx := context.Background()
	s := state.New()
	m, fns := newManager(plugin.WithVariables(s))

	p := newTestPlugin("p")
	p.command = "hello"
	p.subscribe = true
	require.NoError(t, m.Register(ctx, p))

	s.Set(ctx, "x", 1)
	require.NoError(t, m.Unload(ctx, "p"))
	s.Set(ctx, "x", 2)

	assert.False(t, fns.Has("hello"))
	assert.Equal(t, 1, p.changes)

	err := m.Unload(ctx, "p")
	assert.ErrorIs(t, err, domain.ErrPluginNotFound)
}

func TestManager_NotifyIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	var reported []domain.PluginEvent
	m, _ := newManager(plugin.WithHooks(domain.Hooks{
		OnPluginEvent: func(_ context.Context, e *domain.PluginEvent) { reported = append(reported, *e) },
	}))

	first := newTestPlugin("first")
	first.panicOn = "event"
	second := newTestPlugin("second")
	second.eventErr = errors.New("nope")
	third := newTestPlugin("third")
	for _, p := range []*testPlugin{first, second, third} {
		require.NoError(t, m.Register(ctx, p))
	}

	failures := m.Notify(ctx, "saved", nil)

	assert.Equal(t, 2, failures)
	assert.Equal(t, []string{"saved"}, third.events)
	require.Len(t, reported, 1)
	assert.Equal(t, 3, reported[0].Plugins)
	assert.Equal(t, 2, reported[0].Failures)
}

func TestManager_FactoriesAreLazy(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()

	created := 0
	m.RegisterFactory("lazy", func() plugin.Plugin {
		created++
		return newTestPlugin("lazy")
	})
	assert.Equal(t, 0, created)
	assert.Equal(t, []string{"lazy"}, m.Available())

	p1, err := m.Ensure(ctx, "lazy")
	require.NoError(t, err)
	p2, err := m.Ensure(ctx, "lazy")
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.Equal(t, 1, created)

	_, err = m.Ensure(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrPluginNotFound)
}

func TestManager_CloseUnloadsInReverseOrder(t *testing.T) {
	ctx := context.Background()
	var order []string
	m, _ := newManager(plugin.WithEventHandler(func(e plugin.Event) {
		if e.Type == plugin.EventUnloaded {
			order = append(order, e.Plugin)
		}
	}))
	for _, n := range []string{"a", "b", "c"} {
		require.NoError(t, m.Register(ctx, newTestPlugin(n)))
	}

	require.NoError(t, m.Close(ctx))

	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Empty(t, m.List())
}

func TestManager_RejectsUnnamed(t *testing.T) {
	m, _ := newManager()
	err := m.Register(context.Background(), newTestPlugin(""))
	assert.ErrorIs(t, err, plugin.ErrInvalidPlugin)
}

func TestManager_SendTargetsOnePlugin(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager()
	ok, bad := newTestPlugin("ok"), newTestPlugin("bad")
	bad.panicOn = "event"
	require.NoError(t, m.Register(ctx, ok))
	require.NoError(t, m.Register(ctx, bad))

	assert.NoError(t, m.Send(ctx, "ok", "ping", nil))
	assert.Error(t, m.Send(ctx, "bad", "ping", nil))
	assert.ErrorIs(t, m.Send(ctx, "ghost", "ping", nil), domain.ErrPluginNotFound)
	assert.Equal(t, []string{"ping"}, ok.events)
}
