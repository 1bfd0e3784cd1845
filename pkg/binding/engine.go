// Package binding keeps UI target properties in sync with state variables.
//
// The Engine holds a table of state key -> bindings. It is installed as a
// state.Store observer: on every change it formats the new value and writes it
// to each bound target, marshalling the write onto the UI context when the
// change originated elsewhere. Failures are contained per binding.
package binding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/aretw0/weft/pkg/state"
)

// Source reads current state values for Refresh.
type Source interface {
	Get(name string) (any, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDispatcher sets the UI context used to marshal property writes.
func WithDispatcher(d ports.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithSource sets where Refresh reads values from.
func WithSource(s Source) Option {
	return func(e *Engine) {
		e.source = s
	}
}

// WithHooks registers lifecycle hooks for binding pushes.
func WithHooks(h domain.Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	byKey map[string][]*domain.Binding
	keys  []string

	renderer   ports.Renderer
	dispatcher ports.Dispatcher
	source     Source
	hooks      domain.Hooks
	logger     *slog.Logger
}

// New creates an engine writing through renderer.
func New(renderer ports.Renderer, opts ...Option) *Engine {
	e := &Engine{
		byKey:      make(map[string][]*domain.Binding),
		renderer:   renderer,
		dispatcher: ports.Immediate{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind registers a binding. It returns false when key already has a binding
// for the same target and property.
func (e *Engine) Bind(key, targetID, property, format string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, b := range e.byKey[key] {
		if b.TargetID == targetID && strings.EqualFold(b.Property, property) {
			return false
		}
	}
	if _, known := e.byKey[key]; !known {
		e.keys = append(e.keys, key)
	}
	e.byKey[key] = append(e.byKey[key], &domain.Binding{
		Key:      key,
		TargetID: targetID,
		Property: property,
		Format:   format,
		Active:   true,
	})
	return true
}

// Unbind removes every binding of key and returns how many were removed.
func (e *Engine) Unbind(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.byKey[key])
	e.dropKeyLocked(key)
	return n
}

// UnbindOne removes a single binding.
func (e *Engine) UnbindOne(key, targetID, property string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.byKey[key]
	for i, b := range list {
		if b.TargetID == targetID && strings.EqualFold(b.Property, property) {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				e.dropKeyLocked(key)
			} else {
				e.byKey[key] = list
			}
			return true
		}
	}
	return false
}

// SetActive enables or disables a binding without removing it.
func (e *Engine) SetActive(key, targetID, property string, active bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.byKey[key] {
		if b.TargetID == targetID && strings.EqualFold(b.Property, property) {
			b.Active = active
			return true
		}
	}
	return false
}

// Reset removes all bindings.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byKey = make(map[string][]*domain.Binding)
	e.keys = nil
}

// List returns a copy of all bindings, grouped by key in registration order.
func (e *Engine) List() []domain.Binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Binding
	for _, k := range e.keys {
		for _, b := range e.byKey[k] {
			out = append(out, *b)
		}
	}
	return out
}

// ForKey returns a copy of the bindings of key.
func (e *Engine) ForKey(key string) []domain.Binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.byKey[key]
	out := make([]domain.Binding, len(list))
	for i, b := range list {
		out[i] = *b
	}
	return out
}

func (e *Engine) dropKeyLocked(key string) {
	delete(e.byKey, key)
	for i, k := range e.keys {
		if k == key {
			e.keys = append(e.keys[:i:i], e.keys[i+1:]...)
			break
		}
	}
}

// OnChange adapts the engine to a state.Store observer.
func (e *Engine) OnChange(ctx context.Context, c state.Change) {
	e.Apply(ctx, c.Name, c.New)
}

// Apply pushes value to every active binding of key. It never fails: problems
// are logged and reported through hooks one binding at a time.
func (e *Engine) Apply(ctx context.Context, key string, value any) {
	bindings := e.activeFor(key)
	if len(bindings) == 0 {
		return
	}

	if e.dispatcher.CheckAccess(ctx) {
		for _, b := range bindings {
			e.push(ctx, b, value)
		}
		return
	}
	e.dispatcher.Post(func(uiCtx context.Context) {
		for _, b := range bindings {
			e.push(uiCtx, b, value)
		}
	})
}

// Refresh re-pushes the current value of key, if it has one.
func (e *Engine) Refresh(ctx context.Context, key string) {
	if e.source == nil {
		return
	}
	if v, ok := e.source.Get(key); ok {
		e.Apply(ctx, key, v)
	}
}

func (e *Engine) activeFor(key string) []domain.Binding {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Binding
	for _, b := range e.byKey[key] {
		if b.Active {
			out = append(out, *b)
		}
	}
	return out
}

func (e *Engine) push(ctx context.Context, b domain.Binding, value any) {
	text := ""
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("binding panicked: %v", r)
		}
		e.report(ctx, b, text, err)
	}()

	target, ok := e.renderer.Locate(b.TargetID)
	if !ok {
		err = fmt.Errorf("%w: %s", domain.ErrTargetNotFound, b.TargetID)
		return
	}
	text = convert.FormatValue(b.Format, value)
	err = e.renderer.SetProperty(target, b.Property, text)
}

func (e *Engine) report(ctx context.Context, b domain.Binding, text string, err error) {
	evt := &domain.BindingEvent{
		EventBase: domain.EventBase{Timestamp: time.Now()},
		Binding:   b,
		Value:     text,
		Err:       err,
	}
	if err != nil {
		e.logger.Warn("binding not applied", "key", b.Key, "target", b.TargetID, "property", b.Property, "err", err)
		evt.Type = domain.EventBindingFail
		if e.hooks.OnBindingFailed != nil {
			e.hooks.OnBindingFailed(ctx, evt)
		}
		return
	}
	evt.Type = domain.EventBindingApply
	if e.hooks.OnBindingApplied != nil {
		e.hooks.OnBindingApplied(ctx, evt)
	}
}
