// Package registry holds the named commands and functions contributed by the
// host and by plugins.
//
// Names are matched case-insensitively. Registering an existing name replaces
// the previous behaviour silently. Dispatch never lets a panic or an error from
// the registered behaviour escape: failures are logged and reported as a flag.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/text/cases"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
)

// CommandFunc implements an imperative operation invoked as a handler node.
// The node carries interpolated attributes. sender is the trigger source.
type CommandFunc func(ctx context.Context, node *domain.HandlerNode, sender any) bool

// FunctionFunc implements a pure computation used inside text interpolation.
type FunctionFunc func(args string) (string, error)

var folder = cases.Fold()

// Fold normalises a name the way the registries compare it.
func Fold(name string) string {
	return folder.String(name)
}

type entry[F any] struct {
	name  string
	owner string
	fn    F
}

// table is the shared lock-guarded map behind both registries.
type table[F any] struct {
	mu      sync.RWMutex
	entries map[string]entry[F]
}

func newTable[F any]() table[F] {
	return table[F]{entries: make(map[string]entry[F])}
}

func (t *table[F]) register(name, owner string, fn F) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[Fold(name)] = entry[F]{name: name, owner: owner, fn: fn}
}

func (t *table[F]) unregister(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := Fold(name)
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

func (t *table[F]) unregisterOwner(owner string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.entries {
		if e.owner == owner {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

func (t *table[F]) lookup(name string) (entry[F], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[Fold(name)]
	return e, ok
}

func (t *table[F]) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}

// Option configures a registry.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for dispatch failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Commands manages the available commands.
type Commands struct {
	t      table[CommandFunc]
	logger *slog.Logger
}

// NewCommands creates an empty command registry.
func NewCommands(opts ...Option) *Commands {
	o := buildOptions(opts)
	return &Commands{t: newTable[CommandFunc](), logger: o.logger}
}

// Register adds a command owned by the host.
func (r *Commands) Register(name string, fn CommandFunc) {
	r.t.register(name, "", fn)
}

// RegisterOwned adds a command owned by a plugin. See UnregisterOwner.
func (r *Commands) RegisterOwned(owner, name string, fn CommandFunc) {
	r.t.register(name, owner, fn)
}

// Unregister removes a command and reports whether it existed.
func (r *Commands) Unregister(name string) bool {
	return r.t.unregister(name)
}

// UnregisterOwner removes every command registered by owner.
func (r *Commands) UnregisterOwner(owner string) int {
	return r.t.unregisterOwner(owner)
}

// Has reports whether name is registered.
func (r *Commands) Has(name string) bool {
	_, ok := r.t.lookup(name)
	return ok
}

// Names returns the registered names as given at registration, sorted.
func (r *Commands) Names() []string {
	return r.t.names()
}

// Execute looks up a command by name and runs it.
// found is false when no command has that name. ok is the command's own result,
// forced to false when it panicked.
func (r *Commands) Execute(ctx context.Context, name string, node *domain.HandlerNode, sender any) (found, ok bool) {
	e, exists := r.t.lookup(name)
	if !exists {
		return false, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command panicked", "command", e.name, "plugin", e.owner, "err", fmt.Errorf("%v", rec))
			found, ok = true, false
		}
	}()
	return true, e.fn(ctx, node, sender)
}

// Functions manages the available interpolation functions.
type Functions struct {
	t      table[FunctionFunc]
	logger *slog.Logger
}

// NewFunctions creates an empty function registry.
func NewFunctions(opts ...Option) *Functions {
	o := buildOptions(opts)
	return &Functions{t: newTable[FunctionFunc](), logger: o.logger}
}

// Register adds a function owned by the host.
func (r *Functions) Register(name string, fn FunctionFunc) {
	r.t.register(name, "", fn)
}

// RegisterOwned adds a function owned by a plugin.
func (r *Functions) RegisterOwned(owner, name string, fn FunctionFunc) {
	r.t.register(name, owner, fn)
}

// Unregister removes a function and reports whether it existed.
func (r *Functions) Unregister(name string) bool {
	return r.t.unregister(name)
}

// UnregisterOwner removes every function registered by owner.
func (r *Functions) UnregisterOwner(owner string) int {
	return r.t.unregisterOwner(owner)
}

// Has reports whether name is registered.
func (r *Functions) Has(name string) bool {
	_, ok := r.t.lookup(name)
	return ok
}

// Names returns the registered names, sorted.
func (r *Functions) Names() []string {
	return r.t.names()
}

// Call runs the named function. It returns false when the function is missing,
// returns an error or panics.
func (r *Functions) Call(name, args string) (result string, ok bool) {
	e, exists := r.t.lookup(name)
	if !exists {
		return "", false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("function panicked", "function", e.name, "plugin", e.owner, "err", fmt.Errorf("%v", rec))
			result, ok = "", false
		}
	}()
	out, err := e.fn(args)
	if err != nil {
		r.logger.Warn("function failed", "function", e.name, "plugin", e.owner, "err", err)
		return "", false
	}
	return out, true
}
