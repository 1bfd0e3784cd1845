package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/weft/pkg/domain"
)

// Handlers is an in-memory table of named handler trees.
// Safe for concurrent use.
type Handlers struct {
	mu    sync.RWMutex
	nodes map[string]*domain.HandlerNode
}

// NewHandlers creates an empty handler table.
func NewHandlers() *Handlers {
	return &Handlers{nodes: make(map[string]*domain.HandlerNode)}
}

// NewHandlersFrom creates a table from a name to node-list map. Each list
// becomes the children of a Handler root.
func NewHandlersFrom(defs map[string][]*domain.HandlerNode) (*Handlers, error) {
	h := NewHandlers()
	for name, body := range defs {
		if name == "" {
			return nil, fmt.Errorf("handler missing name")
		}
		h.Set(name, domain.NewNode(domain.KindHandler, nil, body...))
	}
	return h, nil
}

// Set registers or replaces a handler.
func (h *Handlers) Set(name string, root *domain.HandlerNode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[name] = root
}

// Replace swaps the whole table in one step.
func (h *Handlers) Replace(nodes map[string]*domain.HandlerNode) {
	next := make(map[string]*domain.HandlerNode, len(nodes))
	for k, v := range nodes {
		next[k] = v
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = next
}

// Handler returns the handler called name.
func (h *Handlers) Handler(name string) (*domain.HandlerNode, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[name]
	return n, ok
}

// Names returns all handler names, sorted.
func (h *Handlers) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.nodes))
	for k := range h.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys
}

// Len returns the number of handlers.
func (h *Handlers) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}
