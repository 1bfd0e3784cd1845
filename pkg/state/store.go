// Package state holds the named variables a running application mutates.
//
// Store is the single source of truth for handler variables. Every mutation is
// serialised under one lock and then fanned out, outside the lock, to the
// registered observers (the binding engine) and subscribers (tooling, plugins).
package state

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/convert"
)

// Change describes one mutation of the store.
type Change struct {
	Name   string
	Old    any
	New    any
	HadOld bool
	// Deleted is set when the variable was removed instead of written.
	Deleted bool
}

// Observer is called after every mutation with the context of the writer.
type Observer func(ctx context.Context, c Change)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for arithmetic rejections.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithObserver installs an observer that runs for every change.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observers = append(s.observers, o)
	}
}

// Store is a concurrency-safe name to value map with change notification.
type Store struct {
	mu     sync.RWMutex
	values map[string]any

	subMu     sync.RWMutex
	observers []Observer
	subs      map[uint64]Observer
	nextSub   uint64

	logger *slog.Logger
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		values: make(map[string]any),
		subs:   make(map[uint64]Observer),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe appends an observer. Observers run in registration order before subscribers.
func (s *Store) Observe(o Observer) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.observers = append(s.observers, o)
}

// Subscribe registers fn for change notifications and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Get returns the current value of name.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set writes value under name and notifies listeners.
func (s *Store) Set(ctx context.Context, name string, value any) {
	s.mu.Lock()
	old, had := s.values[name]
	s.values[name] = value
	s.mu.Unlock()

	s.notify(ctx, Change{Name: name, Old: old, New: value, HadOld: had})
}

// Delete removes name. It reports whether the variable existed.
func (s *Store) Delete(ctx context.Context, name string) bool {
	s.mu.Lock()
	old, had := s.values[name]
	delete(s.values, name)
	s.mu.Unlock()

	if had {
		s.notify(ctx, Change{Name: name, Old: old, HadOld: true, Deleted: true})
	}
	return had
}

// Reset replaces the whole content with seed. Listeners are told about every
// variable in seed and every variable that disappeared.
func (s *Store) Reset(ctx context.Context, seed map[string]any) {
	s.mu.Lock()
	previous := s.values
	s.values = make(map[string]any, len(seed))
	for k, v := range seed {
		s.values[k] = v
	}
	s.mu.Unlock()

	for _, name := range sortedKeys(previous) {
		if _, kept := seed[name]; !kept {
			s.notify(ctx, Change{Name: name, Old: previous[name], HadOld: true, Deleted: true})
		}
	}
	for _, name := range sortedKeys(seed) {
		old, had := previous[name]
		s.notify(ctx, Change{Name: name, Old: old, New: seed[name], HadOld: had})
	}
}

// Increment adds operand to name.
func (s *Store) Increment(ctx context.Context, name string, operand any) (any, bool) {
	return s.apply(ctx, convert.OpAdd, name, operand)
}

// Decrement subtracts operand from name.
func (s *Store) Decrement(ctx context.Context, name string, operand any) (any, bool) {
	return s.apply(ctx, convert.OpSubtract, name, operand)
}

// Multiply multiplies name by operand.
func (s *Store) Multiply(ctx context.Context, name string, operand any) (any, bool) {
	return s.apply(ctx, convert.OpMultiply, name, operand)
}

// Divide divides name by operand. Dividing by zero leaves the value unchanged and returns false.
func (s *Store) Divide(ctx context.Context, name string, operand any) (any, bool) {
	return s.apply(ctx, convert.OpDivide, name, operand)
}

// Modulo replaces name with the remainder of name / operand. Zero behaves like Divide.
func (s *Store) Modulo(ctx context.Context, name string, operand any) (any, bool) {
	return s.apply(ctx, convert.OpModulo, name, operand)
}

// apply runs read-modify-write under one lock so concurrent increments never lose updates.
func (s *Store) apply(ctx context.Context, op convert.Op, name string, operand any) (any, bool) {
	s.mu.Lock()
	old, had := s.values[name]
	result, ok := convert.Arith(op, old, operand)
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("arithmetic rejected", "key", name, "op", string(op), "operand", operand)
		return old, false
	}
	s.values[name] = result
	s.mu.Unlock()

	s.notify(ctx, Change{Name: name, Old: old, New: result, HadOld: had})
	return result, true
}

// Snapshot returns a copy of all variables.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns the variable names in lexical order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.values)
}

// Len returns the number of variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *Store) notify(ctx context.Context, c Change) {
	s.subMu.RLock()
	if len(s.observers) == 0 && len(s.subs) == 0 {
		s.subMu.RUnlock()
		return
	}
	observers := make([]Observer, 0, len(s.observers)+len(s.subs))
	observers = append(observers, s.observers...)
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		observers = append(observers, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, o := range observers {
		s.safeCall(ctx, o, c)
	}
}

func (s *Store) safeCall(ctx context.Context, o Observer, c Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state observer panicked", "key", c.Name, "panic", r)
		}
	}()
	o(ctx, c)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
