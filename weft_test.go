package weft_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/adapters/lua"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/schema"
)

const counterApp = `
name: counter
settings:
  max_while_iterations: 5
variables:
  count: 0
  seen: []
resources:
  greeting: Hello
controls:
  - id: countLabel
    kind: Label
    properties:
      Text: "{Binding count, Format=Count: {0}}"
  - {id: countBar, kind: ProgressBar, properties: {Maximum: 10}}
bindings:
  - {key: count, target: countBar, property: Value}
plugins:
  - {builtin: text}
handlers:
  increment:
    - {op: Increment, Variable: count, Value: 1}
  loop:
    - op: For
      Variable: i
      Range: "0,5"
      body:
        - {op: If, Condition: "i == 3", body: [Break]}
        - {op: Append, Variable: seen, Value: "{i}"}
    - {op: Set, Variable: after, Value: "{greeting} {upper(done)}"}
  spin:
    - op: While
      Condition: "true"
      body:
        - {op: Increment, Variable: spins}
`

func load(t *testing.T, src string, opts ...weft.Option) *weft.Engine {
	t.Helper()
	doc, err := markup.Parse([]byte(src))
	require.NoError(t, err)
	eng := weft.New(opts...)
	require.NoError(t, eng.Load(context.Background(), doc))
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng
}

func property(t *testing.T, eng *weft.Engine, id, name string) any {
	t.Helper()
	c, ok := eng.Tree().Control(id)
	require.True(t, ok, "control %q missing", id)
	v, _ := c.Get(name)
	return v
}

func TestEngine_LoadBuildsControlsAndBindings(t *testing.T) {
	eng := load(t, counterApp)

	assert.Equal(t, []string{"countBar", "countLabel"}, eng.ControlIDs())
	assert.Equal(t, []string{"increment", "loop", "spin"}, eng.HandlerNames())
	assert.Len(t, eng.BindingList(), 2)
	assert.Equal(t, "Count: 0", property(t, eng, "countLabel", "Text"))
	assert.Equal(t, int64(0), property(t, eng, "countBar", "Value"))
	assert.Equal(t, int64(10), property(t, eng, "countBar", "Maximum"))
	require.Len(t, eng.PluginList(), 1)
	assert.Equal(t, "text", eng.PluginList()[0].Name)
}

func TestEngine_ExecutePushesBindings(t *testing.T) {
	ctx := context.Background()
	eng := load(t, counterApp)

	res, ok := eng.Execute(ctx, "increment", "button1")
	require.True(t, ok)
	assert.Equal(t, 0, res.Failures)

	assert.Equal(t, int64(1), eng.StateSnapshot()["count"])
	assert.Equal(t, "Count: 1", property(t, eng, "countLabel", "Text"))
	assert.Equal(t, int64(1), property(t, eng, "countBar", "Value"))
}

func TestEngine_UnknownHandlerIsNoOp(t *testing.T) {
	eng := load(t, counterApp)
	before := eng.StateSnapshot()

	assert.False(t, eng.ExecuteHandlerByName(context.Background(), "ghost"))
	assert.Equal(t, before, eng.StateSnapshot())
}

func TestEngine_LoopsResourcesAndBuiltinFunctions(t *testing.T) {
	ctx := context.Background()
	eng := load(t, counterApp)

	require.True(t, eng.ExecuteHandlerByName(ctx, "loop"))
	require.True(t, eng.ExecuteHandlerByName(ctx, "spin"))

	snap := eng.StateSnapshot()
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, snap["seen"])
	assert.Equal(t, "Hello DONE", snap["after"])
	assert.Equal(t, int64(5), snap["spins"], "document setting caps While")
	_, leaked := snap["break"]
	assert.False(t, leaked)
}

func TestEngine_SetVariableUpdatesBoundControls(t *testing.T) {
	eng := load(t, counterApp)

	eng.SetVariable(context.Background(), "count", 7)

	assert.Equal(t, "Count: 7", property(t, eng, "countLabel", "Text"))
	assert.Equal(t, int64(7), property(t, eng, "countBar", "Value"))
}

func TestEngine_ConcurrentExecution(t *testing.T) {
	ctx := context.Background()
	eng := load(t, counterApp)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.ExecuteHandlerByName(ctx, "increment")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), eng.StateSnapshot()["count"])
}

func TestEngine_InvalidDocument(t *testing.T) {
	doc, err := markup.Parse([]byte(`
controls:
  - {id: a, kind: Label}
  - {id: a, kind: Label}
`))
	require.NoError(t, err)

	err = weft.New().Load(context.Background(), doc)
	assert.True(t, markup.IsValidationError(err))
}

func TestEngine_HostCommandsAndHooks(t *testing.T) {
	ctx := context.Background()
	var finished []string
	var nodeErrors int
	eng := load(t, counterApp, weft.WithHooks(domain.Hooks{
		OnHandlerFinish: func(_ context.Context, e *domain.HandlerEvent) { finished = append(finished, e.Handler) },
	}), weft.WithHooks(domain.Hooks{
		OnNodeError: func(context.Context, *domain.NodeErrorEvent) { nodeErrors++ },
	}))

	var got string
	eng.RegisterCommand("Beep", func(_ context.Context, n *domain.HandlerNode, sender any) bool {
		got = n.Attrs["Text"] + "/" + sender.(string)
		return true
	})

	eng.Run(ctx, "adhoc", domain.NewNode(domain.KindHandler, nil,
		domain.NewNode("beep", map[string]string{"Text": "{count}"}),
		domain.NewNode("Set", nil),
	), "timer")

	assert.Equal(t, "0/timer", got)
	assert.Equal(t, []string{"adhoc"}, finished)
	assert.Equal(t, 1, nodeErrors)
}

func TestEngine_SaveAndRestoreState(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memory.NewStore()
	eng := load(t, counterApp,
		weft.WithSnapshotStore(store),
		weft.WithLocker(redis.NewLocker(client, "weft:")),
	)

	eng.SetVariable(ctx, "count", int64(4))
	require.NoError(t, eng.SaveState(ctx, "s1"))
	assert.False(t, mr.Exists("weft:lock:s1"), "lock is released after the write")

	eng.SetVariable(ctx, "count", int64(9))
	eng.SetVariable(ctx, "extra", "x")
	require.NoError(t, eng.RestoreState(ctx, "s1"))

	snap := eng.StateSnapshot()
	assert.Equal(t, int64(4), snap["count"])
	assert.NotContains(t, snap, "extra")
	assert.Equal(t, "Count: 4", property(t, eng, "countLabel", "Text"))

	assert.ErrorIs(t, eng.RestoreState(ctx, "missing"), domain.ErrSnapshotNotFound)

	sessions, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, sessions)

	require.NoError(t, eng.DeleteState(ctx, "s1"))
	assert.ErrorIs(t, eng.RestoreState(ctx, "s1"), domain.ErrSnapshotNotFound)
}

func TestEngine_RestoreRejectsMistypedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := load(t, `
variables: {count: 1, name: a}
types: {count: int, name: string}
`, weft.WithSnapshotStore(store))

	require.NoError(t, store.Save(ctx, "good", map[string]any{"count": 3.0, "name": "b"}))
	require.NoError(t, eng.RestoreState(ctx, "good"))
	assert.Equal(t, 3.0, eng.StateSnapshot()["count"])

	require.NoError(t, store.Save(ctx, "bad", map[string]any{"count": "three"}))
	err := eng.RestoreState(ctx, "bad")
	assert.ErrorIs(t, err, domain.ErrSnapshotMismatch)
	assert.Len(t, schema.ValidationErrors(err), 2)
	assert.Equal(t, "b", eng.StateSnapshot()["name"], "state is untouched")
}

const luaGreeter = `
plugin = { name = "greeter", version = "1.0.0" }

function on_load()
  weft.register_function("greet", function(args) return "Hi " .. args end)
end

function on_event(name, payload)
  weft.set("lastEvent", name)
end
`

func writeApp(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEngine_LoadFileCompilesPlugins(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins", "greeter.lua"), []byte(luaGreeter), 0o644))
	path := writeApp(t, dir, `
plugins:
  - {source: plugins/greeter.lua}
  - {source: plugins/missing.lua}
handlers:
  hello:
    - {op: Set, Variable: msg, Value: "{greet(ana)}"}
    - {op: Emit, Event: greeted}
`)

	eng := weft.New()
	t.Cleanup(func() { _ = eng.Close(ctx) })
	err := eng.LoadFile(ctx, path)
	require.Error(t, err, "the missing plugin is reported")
	assert.Contains(t, err.Error(), "missing.lua")

	require.True(t, eng.ExecuteHandlerByName(ctx, "hello"))
	snap := eng.StateSnapshot()
	assert.Equal(t, "Hi ana", snap["msg"])
	assert.Equal(t, "greeted", snap["lastEvent"])
	assert.Equal(t, []plugin.Info{{Name: "greeter", Version: "1.0.0"}}, eng.PluginList())
}

type recordingCompiler struct {
	inner   *lua.Compiler
	plugins []*lua.Plugin
}

func (c *recordingCompiler) CompilePlugin(source, moduleID string, refs []string) (plugin.Plugin, error) {
	p, err := c.inner.NewPlugin(source, moduleID, refs)
	if err != nil {
		return nil, err
	}
	c.plugins = append(c.plugins, p)
	return p, nil
}

func TestEngine_FailedPluginLoadClosesModule(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.lua"), []byte(`
function on_load()
  error("no host for me")
end
`), 0o644))
	path := writeApp(t, dir, `
plugins:
  - {name: broken, source: broken.lua}
`)

	compiler := &recordingCompiler{inner: lua.NewCompiler()}
	eng := weft.New(weft.WithCompiler(compiler))
	t.Cleanup(func() { _ = eng.Close(ctx) })

	err := eng.LoadFile(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no host for me")
	assert.Empty(t, eng.PluginList())

	require.Len(t, compiler.plugins, 1)
	_, err = compiler.plugins[0].Module().Invoke("on_load")
	assert.ErrorIs(t, err, lua.ErrModuleClosed)
}

func TestEngine_LoadWritesEachBindingOnce(t *testing.T) {
	ctx := context.Background()
	var applied []string
	eng := load(t, counterApp, weft.WithHooks(domain.Hooks{
		OnBindingApplied: func(_ context.Context, e *domain.BindingEvent) {
			applied = append(applied, e.Binding.TargetID+"."+e.Binding.Property)
		},
	}))
	assert.ElementsMatch(t, []string{"countLabel.Text", "countBar.Value"}, applied)

	applied = nil
	require.NoError(t, eng.SaveState(ctx, "s"))
	require.NoError(t, eng.RestoreState(ctx, "s"))
	assert.ElementsMatch(t, []string{"countLabel.Text", "countBar.Value"}, applied)
}

func TestEngine_ReloadReseedsVariables(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeApp(t, dir, `
variables: {count: 1}
handlers:
  a: [{op: Increment, Variable: count}]
`)
	eng := weft.New()
	require.NoError(t, eng.LoadFile(ctx, path))
	eng.ExecuteHandlerByName(ctx, "a")
	eng.Cache().Set("k", "v", 0)

	writeApp(t, dir, `
variables: {count: 10}
handlers:
  b: [{op: Decrement, Variable: count}]
`)
	require.NoError(t, eng.Reload(ctx))

	assert.Equal(t, []string{"b"}, eng.HandlerNames())
	assert.Equal(t, map[string]any{"count": int64(10)}, eng.StateSnapshot())
	assert.True(t, eng.Cache().Has("k"), "the cache survives a reload")
}

func TestEngine_ReloadWithoutFile(t *testing.T) {
	eng := load(t, counterApp)
	assert.Error(t, eng.Reload(context.Background()))
	_, err := eng.Watch(context.Background())
	assert.Error(t, err)
}

func TestEngine_WatchReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	path := writeApp(t, dir, "handlers:\n  first: [{op: Log, Message: hi}]\n")

	eng := weft.New()
	require.NoError(t, eng.LoadFile(ctx, path))
	reloads, err := eng.Watch(ctx)
	require.NoError(t, err)

	writeApp(t, dir, "handlers:\n  second: [{op: Log, Message: hi}]\n")

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the file changed")
	}
	assert.Equal(t, []string{"second"}, eng.HandlerNames())
}

func TestEngine_CacheStatsAndEvents(t *testing.T) {
	ctx := context.Background()
	eng := load(t, counterApp, weft.WithCacheCapacity(2))

	eng.Run(ctx, "h", domain.NewNode("CacheSet", map[string]string{"Key": "a", "Value": "1"}), nil)
	eng.Run(ctx, "h", domain.NewNode("CacheSet", map[string]string{"Key": "b", "Value": "2"}), nil)
	eng.Run(ctx, "h", domain.NewNode("CacheSet", map[string]string{"Key": "c", "Value": "3"}), nil)
	eng.Cache().Get("c")

	st := eng.CacheStats()
	assert.Equal(t, 2, st.TotalEntries)
	assert.Equal(t, int64(1), st.TotalHits)
	assert.Equal(t, 2, st.Capacity)
	assert.Equal(t, 0, eng.NotifyPlugins(ctx, "tick", nil))
}
