// Package runtime executes handler trees.
//
// An Interpreter walks a domain.HandlerNode tree depth first, dispatching each
// node by kind through one table shared by the built-in operations and the
// command registry. Loops consume Break/Continue as returned Flow values; a
// failing node is logged and reported, and its siblings still run.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/ports"
)

// DefaultMaxWhileIterations bounds While loops unless configured otherwise.
const DefaultMaxWhileIterations = 1000

// maxCallDepth bounds nested Call nodes.
const maxCallDepth = 32

// Flow is the control-flow outcome of executing a node or a block.
type Flow int

const (
	FlowNormal Flow = iota
	FlowBreak
	FlowContinue
)

func (f Flow) String() string {
	switch f {
	case FlowBreak:
		return "break"
	case FlowContinue:
		return "continue"
	}
	return "normal"
}

// Variables is the state the interpreter reads and mutates.
type Variables interface {
	Get(name string) (any, bool)
	Set(ctx context.Context, name string, value any)
	Delete(ctx context.Context, name string) bool
	Increment(ctx context.Context, name string, operand any) (any, bool)
	Decrement(ctx context.Context, name string, operand any) (any, bool)
	Multiply(ctx context.Context, name string, operand any) (any, bool)
	Divide(ctx context.Context, name string, operand any) (any, bool)
	Modulo(ctx context.Context, name string, operand any) (any, bool)
}

// CommandDispatcher runs commands contributed by the host and plugins.
type CommandDispatcher interface {
	Execute(ctx context.Context, name string, node *domain.HandlerNode, sender any) (found, ok bool)
}

// FunctionCaller runs interpolation functions.
type FunctionCaller interface {
	Call(name, args string) (string, bool)
}

// Binder manages state to property bindings.
type Binder interface {
	Bind(key, targetID, property, format string) bool
	Unbind(key string) int
	UnbindOne(key, targetID, property string) bool
	Refresh(ctx context.Context, key string)
}

// Cache is the key/value cache reachable from handlers.
type Cache interface {
	Set(key string, value any, ttlSeconds float64)
	Get(key string) (any, bool)
	Remove(key string) bool
	Clear()
}

// HandlerSource resolves handler names for Call nodes.
type HandlerSource interface {
	Handler(name string) (*domain.HandlerNode, bool)
}

// ResourceSource resolves named resources during interpolation.
type ResourceSource interface {
	Resource(name string) (string, bool)
}

// Emitter fans an event out to plugins and returns the number of failures.
type Emitter func(ctx context.Context, event string, payload any) int

// Lookup resolves an identifier or a {token} to a value.
type Lookup func(token string) (any, bool)

// ConditionEvaluator evaluates a boolean expression.
type ConditionEvaluator func(ctx context.Context, expression string, lookup Lookup) (bool, error)

// Resolver turns the content of a {token} into text.
type Resolver func(token string) (string, bool)

// Interpolator expands {token} references in text.
type Interpolator func(ctx context.Context, text string, resolve Resolver) (string, error)

// Result summarises one handler execution.
type Result struct {
	ExecutionID string
	Nodes       int
	Failures    int
	Duration    time.Duration
}

// NodeError wraps the failure of a single node.
type NodeError struct {
	Handler     string
	Kind        string
	ExecutionID string
	Err         error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("handler %q: node %s: %v", e.Handler, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// opFunc implements one node kind.
type opFunc func(x *execution, n *domain.HandlerNode) (Flow, error)

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the interpreter logger.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) {
		in.logger = l
	}
}

// WithHooks registers handler and node lifecycle hooks.
func WithHooks(h domain.Hooks) Option {
	return func(in *Interpreter) {
		in.hooks = h
	}
}

// WithCommands sets the fallback for node kinds without a built-in operation.
func WithCommands(c CommandDispatcher) Option {
	return func(in *Interpreter) {
		in.commands = c
	}
}

// WithFunctions enables {fn(args)} interpolation.
func WithFunctions(f FunctionCaller) Option {
	return func(in *Interpreter) {
		in.functions = f
	}
}

// WithBinder enables Bind and Unbind nodes.
func WithBinder(b Binder) Option {
	return func(in *Interpreter) {
		in.binder = b
	}
}

// WithRenderer enables SetProperty and GetProperty nodes.
func WithRenderer(r ports.Renderer) Option {
	return func(in *Interpreter) {
		in.renderer = r
	}
}

// WithCache enables the Cache* nodes.
func WithCache(c Cache) Option {
	return func(in *Interpreter) {
		in.cache = c
	}
}

// WithHandlers enables Call nodes.
func WithHandlers(h HandlerSource) Option {
	return func(in *Interpreter) {
		in.handlers = h
	}
}

// WithResources enables resource lookups during interpolation.
func WithResources(r ResourceSource) Option {
	return func(in *Interpreter) {
		in.resources = r
	}
}

// WithEmitter enables Emit nodes.
func WithEmitter(e Emitter) Option {
	return func(in *Interpreter) {
		in.emit = e
	}
}

// WithMaxWhileIterations sets the While safety cap. Values below 1 are ignored.
func WithMaxWhileIterations(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxWhile = n
		}
	}
}

// Interpreter executes handler trees. It holds no per-execution state and may
// be used from several goroutines at once.
type Interpreter struct {
	vars         Variables
	evaluator    ConditionEvaluator
	interpolator Interpolator

	commands  CommandDispatcher
	functions FunctionCaller
	binder    Binder
	renderer  ports.Renderer
	cache     Cache
	handlers  HandlerSource
	resources ResourceSource
	emit      Emitter

	ops      map[string]opFunc
	maxWhile int
	hooks    domain.Hooks
	logger   *slog.Logger
}

// NewInterpreter creates an interpreter over vars. A nil evaluator or
// interpolator selects the built-in one.
func NewInterpreter(vars Variables, evaluator ConditionEvaluator, interpolator Interpolator, opts ...Option) *Interpreter {
	if evaluator == nil {
		evaluator = EvaluateCondition
	}
	if interpolator == nil {
		interpolator = Interpolate
	}
	in := &Interpreter{
		vars:         vars,
		evaluator:    evaluator,
		interpolator: interpolator,
		maxWhile:     DefaultMaxWhileIterations,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.ops = builtinOps()
	return in
}

// Kinds returns the built-in node kinds, lower-cased.
func (in *Interpreter) Kinds() []string {
	out := make([]string, 0, len(in.ops))
	for k := range in.ops {
		out = append(out, k)
	}
	return out
}

// Run executes root on behalf of handler. A Handler root runs its children;
// any other node runs as a single statement. Run never panics.
func (in *Interpreter) Run(ctx context.Context, handler string, root *domain.HandlerNode, sender any) Result {
	x := &execution{
		in:      in,
		ctx:     ctx,
		handler: handler,
		id:      uuid.Must(uuid.NewV7()).String(),
		sender:  sender,
	}
	start := time.Now()

	if in.hooks.OnHandlerStart != nil {
		in.hooks.OnHandlerStart(ctx, &domain.HandlerEvent{
			EventBase:   domain.EventBase{Timestamp: start, Type: domain.EventHandlerStart},
			ExecutionID: x.id,
			Handler:     handler,
		})
	}
	in.logger.Debug("handler started", "handler", handler, "exec_id", x.id)

	if root != nil {
		if root.Is(domain.KindHandler) {
			x.block(root.Children)
		} else {
			x.block([]*domain.HandlerNode{root})
		}
	}

	res := Result{ExecutionID: x.id, Nodes: x.nodes, Failures: x.failures, Duration: time.Since(start)}
	in.logger.Debug("handler finished", "handler", handler, "exec_id", x.id,
		"nodes", res.Nodes, "failures", res.Failures, "duration", res.Duration)
	if in.hooks.OnHandlerFinish != nil {
		in.hooks.OnHandlerFinish(ctx, &domain.HandlerEvent{
			EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventHandlerFinish},
			ExecutionID: x.id,
			Handler:     handler,
			Nodes:       res.Nodes,
			Failures:    res.Failures,
			Duration:    res.Duration,
		})
	}
	return res
}

// Evaluate evaluates a condition against the current state. Malformed
// expressions are logged and evaluate to false.
func (in *Interpreter) Evaluate(ctx context.Context, expression string) bool {
	x := &execution{in: in, ctx: ctx}
	return x.condition(expression)
}

// Interpolate expands {token} references in text against the current state,
// the function registry and the resources.
func (in *Interpreter) Interpolate(ctx context.Context, text string) string {
	x := &execution{in: in, ctx: ctx}
	return x.text(text)
}

// execution carries the state of one Run.
type execution struct {
	in      *Interpreter
	ctx     context.Context
	handler string
	id      string
	sender  any
	depth   int

	nodes    int
	failures int
}

// block runs nodes in order and stops at the first Break or Continue.
func (x *execution) block(nodes []*domain.HandlerNode) Flow {
	for _, n := range nodes {
		if n == nil || n.Is(domain.KindElse) {
			continue
		}
		if flow := x.node(n); flow != FlowNormal {
			return flow
		}
	}
	return FlowNormal
}

// node runs one statement. Errors and panics become NodeErrors and never escape.
func (x *execution) node(n *domain.HandlerNode) (flow Flow) {
	x.nodes++
	defer func() {
		if r := recover(); r != nil {
			x.fail(n, fmt.Errorf("panic: %v", r))
			flow = FlowNormal
		}
	}()

	op := x.in.dispatch(n.Kind)
	flow, err := op(x, n)
	if err != nil {
		x.fail(n, err)
		return FlowNormal
	}
	return flow
}

// dispatch selects the operation for kind. Unknown kinds go to the command registry.
func (in *Interpreter) dispatch(kind string) opFunc {
	if op, ok := in.ops[strings.ToLower(kind)]; ok {
		return op
	}
	return opCommand
}

func (x *execution) fail(n *domain.HandlerNode, err error) {
	x.failures++
	nerr := &NodeError{Handler: x.handler, Kind: n.Kind, ExecutionID: x.id, Err: err}
	x.in.logger.Error("node failed", "handler", x.handler, "node", n.Kind, "exec_id", x.id, "err", err)
	if x.in.hooks.OnNodeError != nil {
		x.in.hooks.OnNodeError(x.ctx, &domain.NodeErrorEvent{
			EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeError},
			ExecutionID: x.id,
			Handler:     x.handler,
			Kind:        n.Kind,
			Err:         nerr,
		})
	}
}

func (x *execution) logger() *slog.Logger {
	if x.handler == "" {
		return x.in.logger
	}
	return x.in.logger.With("handler", x.handler, "exec_id", x.id)
}

// cancelled reports whether the caller gave up. Loops check it between iterations.
func (x *execution) cancelled() bool {
	return x.ctx != nil && x.ctx.Err() != nil
}
