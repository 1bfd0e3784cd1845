package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/state"
)

// Variables is the state surface exposed to plugins.
type Variables interface {
	Get(name string) (any, bool)
	Set(ctx context.Context, name string, value any)
	Subscribe(fn state.Observer) (unsubscribe func())
}

// EventType is the kind of a manager event.
type EventType int

const (
	// EventLoaded is emitted after a plugin's OnLoad succeeded.
	EventLoaded EventType = iota
	// EventUnloaded is emitted after a plugin was removed.
	EventUnloaded
	// EventReplaced is emitted when a registration displaced a plugin of the same name.
	EventReplaced
	// EventError is emitted when a lifecycle call failed.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventReplaced:
		return "replaced"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event reports a plugin lifecycle change.
type Event struct {
	Type   EventType
	Plugin string
	Error  error
}

// EventHandler observes manager events. Handlers must not call back into the Manager.
type EventHandler func(Event)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithVariables exposes state to plugins.
func WithVariables(v Variables) Option {
	return func(m *Manager) {
		m.vars = v
	}
}

// WithHandlerRunner lets plugins execute handlers by name.
func WithHandlerRunner(run func(ctx context.Context, name string) bool) Option {
	return func(m *Manager) {
		m.runHandler = run
	}
}

// WithHooks reports Notify fan-outs to observability hooks.
func WithHooks(h domain.Hooks) Option {
	return func(m *Manager) {
		m.hooks = h
	}
}

// WithEventHandler registers a lifecycle observer.
func WithEventHandler(fn EventHandler) Option {
	return func(m *Manager) {
		m.handlers = append(m.handlers, fn)
	}
}

type loaded struct {
	plugin Plugin
	handle *handle
}

// Manager owns the active plugins. Safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	plugins   map[string]*loaded
	loadOrder []string
	factories map[string]Factory

	commands   *registry.Commands
	functions  *registry.Functions
	vars       Variables
	runHandler func(ctx context.Context, name string) bool

	handlers []EventHandler
	hooks    domain.Hooks
	logger   *slog.Logger
}

// NewManager creates a manager that registers plugin contributions into the given registries.
func NewManager(commands *registry.Commands, functions *registry.Functions, opts ...Option) *Manager {
	m := &Manager{
		plugins:   make(map[string]*loaded),
		factories: make(map[string]Factory),
		commands:  commands,
		functions: functions,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register loads p. A plugin already active under the same name is unloaded
// first. If p.OnLoad fails, p is not registered and its contributions are dropped.
func (m *Manager) Register(ctx context.Context, p Plugin) error {
	if p == nil {
		return ErrInvalidPlugin
	}
	name := p.Info().Name
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}

	replaced := false
	if old := m.detach(name); old != nil {
		replaced = true
		m.unloadInstance(ctx, name, old)
	}

	h := newHandle(m, name)
	if err := m.safeLoad(ctx, p, h); err != nil {
		h.release()
		m.emit(Event{Type: EventError, Plugin: name, Error: err})
		return fmt.Errorf("plugin %q: %w", name, err)
	}

	m.mu.Lock()
	displaced := m.plugins[name]
	m.plugins[name] = &loaded{plugin: p, handle: h}
	if displaced == nil {
		m.loadOrder = append(m.loadOrder, name)
	}
	m.mu.Unlock()

	// A concurrent Register of the same name got in first; keep the newest.
	// Registrations are keyed by name and now belong to p, so only the
	// subscriptions of the displaced instance are dropped.
	if displaced != nil {
		m.callUnload(ctx, name, displaced.plugin)
		displaced.handle.unsubscribeAll()
	}

	m.logger.Info("plugin loaded", "plugin", name, "version", p.Info().Version, "replaced", replaced)
	if replaced {
		m.emit(Event{Type: EventReplaced, Plugin: name})
	}
	m.emit(Event{Type: EventLoaded, Plugin: name})
	return nil
}

// Unload calls OnUnload and removes the plugin.
func (m *Manager) Unload(ctx context.Context, name string) error {
	old := m.detach(name)
	if old == nil {
		return fmt.Errorf("plugin %q: %w", name, domain.ErrPluginNotFound)
	}
	m.unloadInstance(ctx, name, old)
	return nil
}

// RegisterFactory records a lazily created plugin.
func (m *Manager) RegisterFactory(name string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = f
}

// Available returns the names of registered factories, sorted.
func (m *Manager) Available() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.factories))
	for n := range m.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Ensure returns the active plugin called name, instantiating it from its
// factory on first use.
func (m *Manager) Ensure(ctx context.Context, name string) (Plugin, error) {
	m.mu.RLock()
	if l, ok := m.plugins[name]; ok {
		m.mu.RUnlock()
		return l.plugin, nil
	}
	f, ok := m.factories[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, domain.ErrPluginNotFound)
	}

	p := f()
	if err := m.Register(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Notify fans event out to every active plugin in load order. A failing or
// panicking plugin is logged and skipped. It returns the number of failures.
func (m *Manager) Notify(ctx context.Context, event string, payload any) int {
	m.mu.RLock()
	targets := make([]*loaded, 0, len(m.loadOrder))
	names := make([]string, 0, len(m.loadOrder))
	for _, n := range m.loadOrder {
		targets = append(targets, m.plugins[n])
		names = append(names, n)
	}
	m.mu.RUnlock()

	failures := 0
	for i, l := range targets {
		if err := m.safeEvent(ctx, l.plugin, event, payload); err != nil {
			failures++
			m.logger.Error("plugin event failed", "plugin", names[i], "event", event, "err", err)
		}
	}

	if m.hooks.OnPluginEvent != nil {
		m.hooks.OnPluginEvent(ctx, &domain.PluginEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPlugin},
			Name:      event,
			Plugins:   len(targets),
			Failures:  failures,
		})
	}
	return failures
}

// Send delivers event to the plugin called name only. A panic is returned as an error.
func (m *Manager) Send(ctx context.Context, name, event string, payload any) error {
	p, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrPluginNotFound, name)
	}
	if err := m.safeEvent(ctx, p, event, payload); err != nil {
		m.logger.Error("plugin event failed", "plugin", name, "event", event, "err", err)
		return err
	}
	return nil
}

// List returns the active plugins in load order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.loadOrder))
	for _, n := range m.loadOrder {
		out = append(out, m.plugins[n].plugin.Info())
	}
	return out
}

// Get returns the active plugin called name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.plugins[name]
	if !ok {
		return nil, false
	}
	return l.plugin, true
}

// Close unloads every plugin in reverse load order.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	order := append([]string(nil), m.loadOrder...)
	m.mu.RUnlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if err := m.Unload(ctx, order[i]); err != nil && !errors.Is(err, domain.ErrPluginNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// detach removes name from the active set and returns it.
func (m *Manager) detach(name string) *loaded {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.plugins[name]
	if !ok {
		return nil
	}
	delete(m.plugins, name)
	for i, n := range m.loadOrder {
		if n == name {
			m.loadOrder = append(m.loadOrder[:i:i], m.loadOrder[i+1:]...)
			break
		}
	}
	return l
}

func (m *Manager) unloadInstance(ctx context.Context, name string, l *loaded) {
	m.callUnload(ctx, name, l.plugin)
	l.handle.release()
	m.logger.Info("plugin unloaded", "plugin", name)
	m.emit(Event{Type: EventUnloaded, Plugin: name})
}

// callUnload runs OnUnload best effort.
func (m *Manager) callUnload(ctx context.Context, name string, p Plugin) {
	err := guard(func() error { return p.OnUnload(ctx) })
	if err != nil {
		m.logger.Warn("plugin unload failed", "plugin", name, "err", err)
		m.emit(Event{Type: EventError, Plugin: name, Error: err})
	}
}

func (m *Manager) safeLoad(ctx context.Context, p Plugin, h Host) error {
	return guard(func() error { return p.OnLoad(ctx, h) })
}

func (m *Manager) safeEvent(ctx context.Context, p Plugin, event string, payload any) error {
	return guard(func() error { return p.OnEvent(ctx, event, payload) })
}

func (m *Manager) emit(e Event) {
	for _, h := range m.handlers {
		func() {
			defer func() { _ = recover() }()
			h(e)
		}()
	}
}

// guard turns a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
