package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// Control is a node of the headless control tree.
type Control struct {
	ID       string
	Kind     string
	ParentID string

	mu    sync.RWMutex
	props map[string]any
}

// Get returns a property value. Names are case-insensitive.
func (c *Control) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.props[strings.ToLower(name)]
	return v, ok
}

// Properties returns a copy of the control's properties keyed by lower-cased name.
func (c *Control) Properties() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.props))
	for k, v := range c.props {
		out[k] = v
	}
	return out
}

func (c *Control) set(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.props[strings.ToLower(name)] = v
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// WithProperties sets the property table. Defaults to DefaultProperties.
func WithProperties(t *PropertyTable) TreeOption {
	return func(tr *Tree) {
		tr.props = t
	}
}

// WithLogger sets the tree logger.
func WithLogger(l *slog.Logger) TreeOption {
	return func(tr *Tree) {
		tr.logger = l
	}
}

// Tree is a headless ports.Renderer holding controls by id.
// Safe for concurrent use.
type Tree struct {
	mu       sync.RWMutex
	controls map[string]*Control
	props    *PropertyTable
	logger   *slog.Logger
}

var _ ports.Renderer = (*Tree)(nil)

// NewTree creates an empty control tree.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{controls: make(map[string]*Control), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	if t.props == nil {
		t.props = DefaultProperties()
	}
	return t
}

// PropertyTable returns the table used to validate writes.
func (t *Tree) PropertyTable() *PropertyTable { return t.props }

// Add creates a control. Initial properties go through the typed setters.
func (t *Tree) Add(id, kind, parentID string, props map[string]any) (*Control, error) {
	if id == "" {
		return nil, fmt.Errorf("control id is required")
	}
	c := &Control{ID: id, Kind: kind, ParentID: parentID, props: make(map[string]any)}
	for _, name := range sortedAnyKeys(props) {
		v, err := t.props.coerce(kind, name, props[name])
		if err != nil {
			return nil, err
		}
		c.set(name, v)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.controls[id]; dup {
		return nil, fmt.Errorf("control %q already exists", id)
	}
	t.controls[id] = c
	return c, nil
}

// Remove deletes a control and its descendants.
func (t *Tree) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.controls[id]; !ok {
		return false
	}
	doomed := map[string]bool{id: true}
	for changed := true; changed; {
		changed = false
		for cid, c := range t.controls {
			if !doomed[cid] && doomed[c.ParentID] {
				doomed[cid] = true
				changed = true
			}
		}
	}
	for cid := range doomed {
		delete(t.controls, cid)
	}
	return true
}

// Clear removes every control.
func (t *Tree) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controls = make(map[string]*Control)
}

// Control returns the control with id.
func (t *Tree) Control(id string) (*Control, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.controls[id]
	return c, ok
}

// IDs returns all control ids, sorted.
func (t *Tree) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.controls))
	for id := range t.controls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Locate implements ports.Renderer.
func (t *Tree) Locate(id string) (ports.Target, bool) {
	c, ok := t.Control(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// SetProperty implements ports.Renderer. Unknown properties wrap domain.ErrUnknownProperty.
func (t *Tree) SetProperty(target ports.Target, name string, value any) error {
	c, ok := target.(*Control)
	if !ok || c == nil {
		return fmt.Errorf("%w: %T is not a control", domain.ErrTargetNotFound, target)
	}
	v, err := t.props.coerce(c.Kind, name, value)
	if err != nil {
		return err
	}
	c.set(name, v)
	t.logger.Debug("property set", "target", c.ID, "property", name, "value", v)
	return nil
}

// GetProperty implements ports.Renderer.
func (t *Tree) GetProperty(target ports.Target, name string) (any, bool) {
	c, ok := target.(*Control)
	if !ok || c == nil {
		return nil, false
	}
	return c.Get(name)
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
