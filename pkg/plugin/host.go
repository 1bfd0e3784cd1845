package plugin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/state"
)

// handle is the Host given to one plugin instance.
type handle struct {
	name string
	m    *Manager

	mu     sync.Mutex
	unsubs []func()
	logger *slog.Logger
}

func newHandle(m *Manager, name string) *handle {
	return &handle{name: name, m: m, logger: m.logger.With("plugin", name)}
}

func (h *handle) RegisterCommand(name string, fn registry.CommandFunc) {
	h.m.commands.RegisterOwned(h.name, name, fn)
}

func (h *handle) RegisterFunction(name string, fn registry.FunctionFunc) {
	h.m.functions.RegisterOwned(h.name, name, fn)
}

func (h *handle) GetVariable(name string) (any, bool) {
	if h.m.vars == nil {
		return nil, false
	}
	return h.m.vars.Get(name)
}

func (h *handle) SetVariable(ctx context.Context, name string, value any) {
	if h.m.vars == nil {
		return
	}
	h.m.vars.Set(ctx, name, value)
}

func (h *handle) ExecuteHandler(ctx context.Context, name string) bool {
	if h.m.runHandler == nil {
		return false
	}
	return h.m.runHandler(ctx, name)
}

func (h *handle) Subscribe(fn state.Observer) {
	if h.m.vars == nil {
		return
	}
	unsub := h.m.vars.Subscribe(fn)
	h.mu.Lock()
	h.unsubs = append(h.unsubs, unsub)
	h.mu.Unlock()
}

func (h *handle) Logger() *slog.Logger {
	return h.logger
}

// release drops everything the plugin registered through this handle.
func (h *handle) release() {
	h.m.commands.UnregisterOwner(h.name)
	h.m.functions.UnregisterOwner(h.name)
	h.unsubscribeAll()
}

func (h *handle) unsubscribeAll() {
	h.mu.Lock()
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}
