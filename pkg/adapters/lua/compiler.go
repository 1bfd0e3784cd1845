package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/ports"
)

// DefaultTimeout bounds a single call into a module.
const DefaultTimeout = 5 * time.Second

// libraries that a module may request through refs.
var libraries = map[string]lua.LGFunction{
	"base":   lua.OpenBase,
	"table":  lua.OpenTable,
	"string": lua.OpenString,
	"math":   lua.OpenMath,
}

var defaultLibraries = []string{"base", "table", "string", "math"}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTimeout bounds every call into a compiled module. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Compiler) {
		c.timeout = d
	}
}

// WithLogger sets the logger used by compiled modules.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// Compiler compiles Lua source into sandboxed modules.
type Compiler struct {
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.Compiler = (*Compiler)(nil)

// NewCompiler creates a compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{timeout: DefaultTimeout, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile loads source as module moduleID. refs name the libraries the module
// needs beyond the defaults; an unknown ref is a compile diagnostic.
// Syntax errors and errors raised while running the chunk are reported as a
// *ports.CompileError.
func (c *Compiler) Compile(source, moduleID string, refs []string) (ports.Module, error) {
	return c.compile(source, moduleID, refs, nil)
}

// compile runs the chunk after preload has installed extra globals.
func (c *Compiler) compile(source, moduleID string, refs []string, preload func(*lua.LState)) (*Module, error) {
	var diags []ports.Diagnostic
	for _, ref := range refs {
		if _, ok := libraries[strings.ToLower(strings.TrimSpace(ref))]; !ok {
			diags = append(diags, ports.Diagnostic{ModuleID: moduleID, Message: fmt.Sprintf("unknown reference %q", ref)})
		}
	}
	if len(diags) > 0 {
		return nil, &ports.CompileError{Diagnostics: diags}
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, name := range defaultLibraries {
		open(L, name)
	}
	sandbox(L)
	before := globalNames(L)

	fn, err := L.Load(strings.NewReader(source), moduleID)
	if err != nil {
		L.Close()
		return nil, &ports.CompileError{Diagnostics: []ports.Diagnostic{diagnostic(moduleID, err)}}
	}

	m := &Module{id: moduleID, L: L, timeout: c.timeout, logger: c.logger.With("module", moduleID)}
	if preload != nil {
		preload(L)
		before = globalNames(L)
	}
	if err := m.run(func() error {
		L.Push(fn)
		return L.PCall(0, lua.MultRet, nil)
	}); err != nil {
		L.Close()
		return nil, &ports.CompileError{Diagnostics: []ports.Diagnostic{diagnostic(moduleID, err)}}
	}
	L.SetTop(0)

	m.entryPoints = newFunctions(L, before)
	c.logger.Debug("lua module compiled", "module", moduleID, "entry_points", len(m.entryPoints))
	return m, nil
}

func open(L *lua.LState, name string) {
	L.Push(L.NewFunction(libraries[name]))
	L.Push(lua.LString(name))
	L.Call(1, 0)
}

// sandbox removes globals that load code from outside the module.
func sandbox(L *lua.LState) {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func globalNames(L *lua.LState) map[string]bool {
	names := make(map[string]bool)
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			names[string(s)] = true
		}
	})
	return names
}

// newFunctions lists the global functions the chunk defined, sorted.
func newFunctions(L *lua.LState, before map[string]bool) []string {
	var out []string
	L.G.Global.ForEach(func(k, v lua.LValue) {
		s, ok := k.(lua.LString)
		if !ok || before[string(s)] {
			return
		}
		if v.Type() == lua.LTFunction {
			out = append(out, string(s))
		}
	})
	sort.Strings(out)
	return out
}

var lineRe = regexp.MustCompile(`(?:line:|:)(\d+)[:(]`)

func diagnostic(moduleID string, err error) ports.Diagnostic {
	msg := err.Error()
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		msg = apiErr.Object.String()
	}
	msg = strings.TrimSpace(msg)
	d := ports.Diagnostic{ModuleID: moduleID, Message: msg}
	if sub := lineRe.FindStringSubmatch(msg); sub != nil {
		d.Line, _ = strconv.Atoi(sub[1])
	}
	return d
}

// Module is a compiled Lua chunk. Calls are serialised; a module must not be
// re-entered from one of its own callbacks.
type Module struct {
	id          string
	entryPoints []string
	timeout     time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

var _ ports.Module = (*Module)(nil)

// ID returns the module identifier.
func (m *Module) ID() string { return m.id }

// EntryPoints returns the global functions defined by the module.
func (m *Module) EntryPoints() []string {
	return append([]string(nil), m.entryPoints...)
}

// HasEntryPoint reports whether the module defines name.
func (m *Module) HasEntryPoint(name string) bool {
	for _, e := range m.entryPoints {
		if e == name {
			return true
		}
	}
	return false
}

// Invoke calls the global function entryPoint and returns its first result.
func (m *Module) Invoke(entryPoint string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModuleClosed
	}
	fn, ok := m.L.GetGlobal(entryPoint).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", m.id, entryPoint, ErrEntryPointNotFound)
	}
	return m.callLocked(fn, args...)
}

// call invokes a Lua function value held by the module.
func (m *Module) call(fn *lua.LFunction, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrModuleClosed
	}
	return m.callLocked(fn, args...)
}

func (m *Module) callLocked(fn *lua.LFunction, args ...any) (any, error) {
	var result any
	err := m.run(func() error {
		top := m.L.GetTop()
		defer m.L.SetTop(top)
		m.L.Push(fn)
		for _, a := range args {
			m.L.Push(toLua(m.L, a))
		}
		if err := m.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return err
		}
		if m.L.GetTop() > top {
			result = toGo(m.L.Get(top + 1))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.id, err)
	}
	return result, nil
}

// run executes fn under the call timeout with panic recovery.
func (m *Module) run(fn func() error) (err error) {
	if m.timeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.L.SetContext(ctx)
		defer m.L.RemoveContext()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the Lua state.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.L.Close()
	return nil
}
