package weft

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/internal/runtime"
	"github.com/aretw0/weft/pkg/adapters/lua"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/binding"
	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/markup"
	"github.com/aretw0/weft/pkg/plugin"
	"github.com/aretw0/weft/pkg/plugin/builtin"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/schema"
	"github.com/aretw0/weft/pkg/session"
	"github.com/aretw0/weft/pkg/state"
)

// Result summarises one handler execution.
type Result = runtime.Result

// ConditionEvaluator evaluates While and If conditions.
type ConditionEvaluator = runtime.ConditionEvaluator

// Interpolator expands {token} references in attribute values.
type Interpolator = runtime.Interpolator

// DefaultLockTTL bounds how long SaveState holds the session lock.
const DefaultLockTTL = 10 * time.Second

// PluginCompiler turns plugin source into a loadable plugin.
type PluginCompiler interface {
	CompilePlugin(source, moduleID string, refs []string) (plugin.Plugin, error)
}

// Engine owns the state store, bindings, cache, registries, plugins and the
// interpreter of one application. All methods are safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	doc       *markup.Document
	types     schema.Schema
	resources map[string]string
	interp    *runtime.Interpreter

	state     *state.Store
	cache     *cache.Store
	commands  *registry.Commands
	functions *registry.Functions
	bindings  *binding.Engine
	handlers  *memory.Handlers
	plugins   *plugin.Manager

	renderer     ports.Renderer
	tree         *memory.Tree
	dispatcher   ports.Dispatcher
	snapshots    ports.SnapshotStore
	locker       ports.DistributedLocker
	compiler     PluginCompiler
	evaluator    ConditionEvaluator
	interpolator Interpolator
	factories    map[string]plugin.Factory

	cacheCapacity int
	maxWhile      int
	hooks         domain.Hooks
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRenderer replaces the headless control tree. Controls declared in a
// document are only built when the renderer is a *memory.Tree.
func WithRenderer(r ports.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

// WithDispatcher sets the UI-owning context binding writes are marshalled onto.
func WithDispatcher(d ports.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithCacheCapacity bounds the cache. A document setting overrides it.
func WithCacheCapacity(n int) Option {
	return func(e *Engine) {
		e.cacheCapacity = n
	}
}

// WithMaxWhileIterations sets the default While cap. A document setting overrides it.
func WithMaxWhileIterations(n int) Option {
	return func(e *Engine) {
		e.maxWhile = n
	}
}

// WithHooks registers lifecycle hooks. Repeated calls accumulate.
func WithHooks(h domain.Hooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(h)
	}
}

// WithSnapshotStore sets where SaveState and RestoreState persist state.
func WithSnapshotStore(s ports.SnapshotStore) Option {
	return func(e *Engine) {
		e.snapshots = s
	}
}

// WithLocker guards snapshot writes with a distributed lock, taken after the
// in-process lock for the same session.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithCompiler sets the compiler used for plugin source files.
func WithCompiler(c PluginCompiler) Option {
	return func(e *Engine) {
		e.compiler = c
	}
}

// WithConditionEvaluator replaces the built-in condition language.
func WithConditionEvaluator(eval ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithInterpolator replaces the built-in {token} interpolation.
func WithInterpolator(interp Interpolator) Option {
	return func(e *Engine) {
		e.interpolator = interp
	}
}

// WithBuiltins registers extra plugin factories next to the built-in ones.
// They are instantiated on first use.
func WithBuiltins(factories map[string]plugin.Factory) Option {
	return func(e *Engine) {
		for name, f := range factories {
			e.factories[name] = f
		}
	}
}

// New creates an engine with an empty state and no handlers.
func New(opts ...Option) *Engine {
	e := &Engine{
		resources: make(map[string]string),
		factories: builtin.Factories(),
		maxWhile:  runtime.DefaultMaxWhileIterations,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.dispatcher == nil {
		e.dispatcher = ports.Immediate{}
	}
	if e.renderer == nil {
		e.renderer = memory.NewTree(memory.WithLogger(e.logger))
	}
	e.tree, _ = e.renderer.(*memory.Tree)
	if e.snapshots == nil {
		e.snapshots = memory.NewStore()
	}
	if e.compiler == nil {
		e.compiler = lua.NewCompiler(lua.WithLogger(e.logger))
	}
	switch l := e.locker.(type) {
	case nil:
		e.locker = session.NewLocker(session.WithLogger(e.logger))
	case *session.Locker:
	default:
		e.locker = session.NewLocker(session.WithDistributed(l), session.WithLogger(e.logger))
	}

	cacheOpts := []cache.Option{cache.WithLogger(e.logger)}
	if e.cacheCapacity > 0 {
		cacheOpts = append(cacheOpts, cache.WithCapacity(e.cacheCapacity))
	}
	e.cache = cache.New(cacheOpts...)
	e.commands = registry.NewCommands(registry.WithLogger(e.logger))
	e.functions = registry.NewFunctions(registry.WithLogger(e.logger))
	e.handlers = memory.NewHandlers()

	e.state = state.New(state.WithLogger(e.logger))
	e.bindings = binding.New(e.renderer,
		binding.WithLogger(e.logger),
		binding.WithDispatcher(e.dispatcher),
		binding.WithSource(e.state),
		binding.WithHooks(e.hooks),
	)
	e.state.Observe(e.bindings.OnChange)

	e.plugins = plugin.NewManager(e.commands, e.functions,
		plugin.WithLogger(e.logger),
		plugin.WithVariables(e.state),
		plugin.WithHandlerRunner(e.ExecuteHandlerByName),
		plugin.WithHooks(e.hooks),
	)
	for name, f := range e.factories {
		e.plugins.RegisterFactory(name, f)
	}

	e.interp = e.newInterpreter(e.maxWhile)
	return e
}

func (e *Engine) newInterpreter(maxWhile int) *runtime.Interpreter {
	return runtime.NewInterpreter(e.state, e.evaluator, e.interpolator,
		runtime.WithLogger(e.logger),
		runtime.WithHooks(e.hooks),
		runtime.WithCommands(e.commands),
		runtime.WithFunctions(e.functions),
		runtime.WithBinder(e.bindings),
		runtime.WithRenderer(e.renderer),
		runtime.WithCache(e.cache),
		runtime.WithHandlers(e.handlers),
		runtime.WithResources(e),
		runtime.WithEmitter(e.plugins.Notify),
		runtime.WithMaxWhileIterations(maxWhile),
	)
}

// LoadFile parses and loads the document at path.
func (e *Engine) LoadFile(ctx context.Context, path string) error {
	doc, err := markup.LoadFile(path)
	if err != nil {
		return err
	}
	return e.Load(ctx, doc)
}

// Load replaces the application with doc. Variables are re-seeded, controls,
// handlers, bindings and resources are rebuilt, and declared plugins are
// loaded. The cache survives. Plugin failures do not stop the load; they are
// joined into the returned error.
func (e *Engine) Load(ctx context.Context, doc *markup.Document) error {
	if err := markup.Validate(doc); err != nil {
		return err
	}

	maxWhile := e.maxWhile
	if doc.Settings.MaxWhileIterations > 0 {
		maxWhile = doc.Settings.MaxWhileIterations
	}
	if doc.Settings.CacheCapacity > 0 {
		e.cache.SetCapacity(doc.Settings.CacheCapacity)
	}

	types, err := doc.Schema()
	if err != nil {
		return err
	}
	resources := make(map[string]string, len(doc.Resources))
	for k, v := range doc.Resources {
		resources[k] = v
	}
	e.mu.Lock()
	e.doc = doc
	e.types = types
	e.resources = resources
	e.interp = e.newInterpreter(maxWhile)
	e.mu.Unlock()

	e.bindings.Reset()
	if err := e.buildControls(doc); err != nil {
		return err
	}
	for _, b := range doc.Bindings {
		e.bindings.Bind(b.Key, b.Target, b.Property, b.Format)
	}
	e.handlers.Replace(doc.Handlers)
	e.state.Reset(ctx, doc.Variables)

	err = e.loadPlugins(ctx, doc)
	e.logger.Info("document loaded",
		"name", doc.Name,
		"handlers", e.handlers.Len(),
		"bindings", len(e.bindings.List()),
		"variables", e.state.Len(),
	)
	return err
}

// buildControls recreates the headless tree. Property values written as
// "{Binding key}" become bindings instead of initial values.
func (e *Engine) buildControls(doc *markup.Document) error {
	if e.tree != nil {
		e.tree.Clear()
	}
	for _, c := range doc.Controls {
		props := make(map[string]any, len(c.Properties))
		for name, v := range c.Properties {
			if s, ok := v.(string); ok {
				if key, format, isBinding := binding.ParseExpression(s); isBinding {
					e.bindings.Bind(key, c.ID, name, format)
					continue
				}
			}
			props[name] = v
		}
		if e.tree == nil {
			continue
		}
		if _, err := e.tree.Add(c.ID, c.Kind, c.Parent, props); err != nil {
			return fmt.Errorf("control %s: %w", c.ID, err)
		}
	}
	return nil
}

func (e *Engine) loadPlugins(ctx context.Context, doc *markup.Document) error {
	var errs []error
	for _, ref := range doc.Plugins {
		if ref.Builtin != "" {
			if _, err := e.plugins.Ensure(ctx, ref.Builtin); err != nil {
				errs = append(errs, fmt.Errorf("plugin %s: %w", ref.Builtin, err))
			}
			continue
		}
		if err := e.loadSource(ctx, doc, ref); err != nil {
			e.logger.Warn("plugin not loaded", "plugin", ref.Source, "err", err)
			errs = append(errs, fmt.Errorf("plugin %s: %w", ref.Source, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) loadSource(ctx context.Context, doc *markup.Document, ref markup.PluginRef) error {
	src, err := os.ReadFile(doc.ResolvePath(ref.Source))
	if err != nil {
		return err
	}
	id := ref.Name
	if id == "" {
		id = ref.Source
	}
	p, err := e.compiler.CompilePlugin(string(src), id, ref.Refs)
	if err != nil {
		return err
	}
	if err := e.plugins.Register(ctx, p); err != nil {
		// OnUnload never runs for a plugin that failed to load.
		if c, ok := p.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				e.logger.Warn("plugin close failed", "plugin", id, "err", cerr)
			}
		}
		return err
	}
	return nil
}

// Reload loads the current document's file again.
func (e *Engine) Reload(ctx context.Context) error {
	path := e.documentPath()
	if path == "" {
		return fmt.Errorf("reload: document was not loaded from a file")
	}
	return e.LoadFile(ctx, path)
}

// Watch reloads the document whenever its file changes. The returned channel
// receives the path after every reload attempt and closes when ctx is done.
func (e *Engine) Watch(ctx context.Context) (<-chan string, error) {
	path := e.documentPath()
	if path == "" {
		return nil, fmt.Errorf("watch: document was not loaded from a file")
	}
	changes, err := markup.Watch(ctx, path, markup.WithWatchLogger(e.logger))
	if err != nil {
		return nil, err
	}
	out := make(chan string, 1)
	go func() {
		defer close(out)
		for p := range changes {
			if err := e.Reload(ctx); err != nil {
				e.logger.Error("reload failed", "path", p, "err", err)
			} else {
				e.logger.Info("document reloaded", "path", p)
			}
			select {
			case out <- p:
			default:
			}
		}
	}()
	return out, nil
}

func (e *Engine) documentPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.doc == nil {
		return ""
	}
	return e.doc.Path
}

// Execute runs the named handler. An unknown name logs a warning and reports false.
func (e *Engine) Execute(ctx context.Context, name string, sender any) (Result, bool) {
	root, ok := e.handlers.Handler(name)
	if !ok {
		e.logger.Warn("handler not found", "handler", name)
		return Result{}, false
	}
	return e.interpreter().Run(ctx, name, root, sender), true
}

// Run executes an ad-hoc node tree as if it were a handler called name.
func (e *Engine) Run(ctx context.Context, name string, root *domain.HandlerNode, sender any) Result {
	return e.interpreter().Run(ctx, name, root, sender)
}

// Evaluate evaluates a condition against the current state.
func (e *Engine) Evaluate(ctx context.Context, expression string) bool {
	return e.interpreter().Evaluate(ctx, expression)
}

// Interpolate expands {token} references in text.
func (e *Engine) Interpolate(ctx context.Context, text string) string {
	return e.interpreter().Interpolate(ctx, text)
}

func (e *Engine) interpreter() *runtime.Interpreter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.interp
}

// Resource returns a document resource.
func (e *Engine) Resource(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.resources[name]
	return v, ok
}

// Document returns the loaded document, or nil.
func (e *Engine) Document() *markup.Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc
}

// RegisterCommand adds a host command. Names are case-insensitive.
func (e *Engine) RegisterCommand(name string, fn registry.CommandFunc) {
	e.commands.Register(name, fn)
}

// RegisterFunction adds a host interpolation function.
func (e *Engine) RegisterFunction(name string, fn registry.FunctionFunc) {
	e.functions.Register(name, fn)
}

// RegisterPlugin loads p, replacing any plugin of the same name.
func (e *Engine) RegisterPlugin(ctx context.Context, p plugin.Plugin) error {
	return e.plugins.Register(ctx, p)
}

// UnloadPlugin unloads the named plugin.
func (e *Engine) UnloadPlugin(ctx context.Context, name string) error {
	return e.plugins.Unload(ctx, name)
}

// EnsurePlugin returns the named plugin, instantiating a built-in on first use.
func (e *Engine) EnsurePlugin(ctx context.Context, name string) (plugin.Plugin, error) {
	return e.plugins.Ensure(ctx, name)
}

// NotifyPlugins fans event out to every plugin and returns the number of failures.
func (e *Engine) NotifyPlugins(ctx context.Context, event string, payload any) int {
	return e.plugins.Notify(ctx, event, payload)
}

// SendPluginEvent delivers event to one plugin.
func (e *Engine) SendPluginEvent(ctx context.Context, name, event string, payload any) error {
	return e.plugins.Send(ctx, name, event, payload)
}

// ClearCache empties the cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// SubscribeState observes state changes until the returned function is called.
func (e *Engine) SubscribeState(fn state.Observer) (unsubscribe func()) {
	return e.state.Subscribe(fn)
}

// Bind registers a binding and pushes the current value.
func (e *Engine) Bind(ctx context.Context, key, targetID, property, format string) bool {
	if !e.bindings.Bind(key, targetID, property, format) {
		return false
	}
	e.bindings.Refresh(ctx, key)
	return true
}

// Unbind removes every binding of key.
func (e *Engine) Unbind(key string) int {
	return e.bindings.Unbind(key)
}

// State returns the state store.
func (e *Engine) State() *state.Store { return e.state }

// Cache returns the cache store.
func (e *Engine) Cache() *cache.Store { return e.cache }

// Renderer returns the renderer bindings write through.
func (e *Engine) Renderer() ports.Renderer { return e.renderer }

// Tree returns the headless control tree, or nil when another renderer is used.
func (e *Engine) Tree() *memory.Tree { return e.tree }

// SaveState persists the current state under sessionID.
func (e *Engine) SaveState(ctx context.Context, sessionID string) (err error) {
	if e.locker != nil {
		unlock, lerr := e.locker.Lock(ctx, sessionID, DefaultLockTTL)
		if lerr != nil {
			return fmt.Errorf("save state: %w", lerr)
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				e.logger.Warn("unlock failed", "session", sessionID, "err", uerr)
			}
		}()
	}
	if err := e.snapshots.Save(ctx, sessionID, e.state.Snapshot()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	e.logger.Debug("state saved", "session", sessionID)
	return nil
}

// RestoreState replaces the state with the snapshot saved under sessionID.
// Bound controls are refreshed. A snapshot that does not match the declared
// variable types is rejected with domain.ErrSnapshotMismatch.
func (e *Engine) RestoreState(ctx context.Context, sessionID string) error {
	snap, err := e.snapshots.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	e.mu.RLock()
	types := e.types
	e.mu.RUnlock()
	if err := schema.Validate(types, snap); err != nil {
		return fmt.Errorf("restore state %s: %w: %w", sessionID, domain.ErrSnapshotMismatch, err)
	}
	e.state.Reset(ctx, snap)
	e.logger.Debug("state restored", "session", sessionID, "variables", len(snap))
	return nil
}

// DeleteState removes the snapshot saved under sessionID. The live state is untouched.
func (e *Engine) DeleteState(ctx context.Context, sessionID string) error {
	if err := e.snapshots.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// Sessions lists the session ids with a saved snapshot.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.snapshots.List(ctx)
}

// Close unloads every plugin.
func (e *Engine) Close(ctx context.Context) error {
	return e.plugins.Close(ctx)
}
