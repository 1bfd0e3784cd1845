package weft

import (
	"context"

	"github.com/aretw0/weft/pkg/cache"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/plugin"
)

// Tooling is the read/drive surface used by devtools adapters.
// *Engine implements it.
type Tooling interface {
	StateSnapshot() map[string]any
	ControlIDs() []string
	HandlerNames() []string
	PluginList() []plugin.Info
	CacheStats() cache.Stats
	BindingList() []domain.Binding
	ExecuteHandlerByName(ctx context.Context, name string) bool
	SetVariable(ctx context.Context, name string, value any)
}

var _ Tooling = (*Engine)(nil)

// StateSnapshot returns a copy of every state variable.
func (e *Engine) StateSnapshot() map[string]any {
	return e.state.Snapshot()
}

// ControlIDs lists the controls of the headless tree, or the controls the
// document declares when another renderer is in use.
func (e *Engine) ControlIDs() []string {
	if e.tree != nil {
		return e.tree.IDs()
	}
	doc := e.Document()
	if doc == nil {
		return nil
	}
	ids := make([]string, 0, len(doc.Controls))
	for _, c := range doc.Controls {
		ids = append(ids, c.ID)
	}
	return ids
}

// HandlerNames lists the registered handlers, sorted.
func (e *Engine) HandlerNames() []string {
	return e.handlers.Names()
}

// PluginList describes the active plugins in load order.
func (e *Engine) PluginList() []plugin.Info {
	return e.plugins.List()
}

// CacheStats reports the cache size and cumulative hits.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// BindingList returns a copy of every binding.
func (e *Engine) BindingList() []domain.Binding {
	return e.bindings.List()
}

// ExecuteHandlerByName runs a handler without a sender.
func (e *Engine) ExecuteHandlerByName(ctx context.Context, name string) bool {
	_, ok := e.Execute(ctx, name, nil)
	return ok
}

// SetVariable writes a state variable; bound controls update.
func (e *Engine) SetVariable(ctx context.Context, name string, value any) {
	e.state.Set(ctx, name, value)
}
