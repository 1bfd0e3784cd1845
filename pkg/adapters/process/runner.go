// Package process runs allow-listed external programs as handler commands.
//
// Only tools registered from a tools file can run. Node attributes reach the
// program as WEFT_ARG_<NAME> environment variables, never as command-line
// flags. Standard output becomes the result: JSON is decoded, anything else
// is kept as trimmed text.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/convert"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/registry"
)

// EnvPrefix prefixes the environment variable of every argument.
const EnvPrefix = "WEFT_ARG_"

// DefaultGracePeriod is how long a cancelled program may take to exit after
// the interrupt before it is killed.
const DefaultGracePeriod = 5 * time.Second

// ErrToolNotRegistered is returned for names missing from the allow-list.
var ErrToolNotRegistered = errors.New("process tool not registered")

// Runner executes allow-listed tools.
type Runner struct {
	registry map[string]Tool
	baseDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]Tool) RunnerOption {
	return func(r *Runner) {
		for _, tool := range tools {
			r.Register(tool)
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger sets the runner logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Tool),
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list. Names are case-insensitive.
func (r *Runner) Register(tool Tool) {
	r.registry[strings.ToLower(tool.Name)] = tool
}

// Names returns the registered tool names, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.registry))
	for n := range r.registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the named tool with args and returns its decoded output.
func (r *Runner) Run(ctx context.Context, name string, args map[string]string) (any, error) {
	tool, ok := r.registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotRegistered, name)
	}

	cmd := exec.CommandContext(ctx, tool.Command, tool.Args...)
	cmd.Dir = r.baseDir
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.grace

	env := cmd.Environ()
	for k, v := range tool.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, EnvPrefix+envName(k)+"="+v)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("tool finished", "tool", tool.Name, "duration", time.Since(start), "error", err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", err, ctxErr)
		}
		return nil, fmt.Errorf("execution of %s failed: %w. Stderr: %s", tool.Name, err, strings.TrimSpace(stderr.String()))
	}
	return decodeOutput(stdout.String()), nil
}

// decodeOutput parses JSON objects and arrays, keeping integers exact.
func decodeOutput(output string) any {
	trimmed := strings.TrimSpace(output)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		dec := json.NewDecoder(strings.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return convert.Normalize(v)
		}
	}
	return trimmed
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, key)
}

// Host is the part of the engine a Runner installs itself into.
type Host interface {
	RegisterCommand(name string, fn registry.CommandFunc)
	SetVariable(ctx context.Context, name string, value any)
}

// Install registers one command per tool. A node such as
//
//	- {op: Fetch, Url: "{url}", Variable: page, ErrorVariable: failure}
//
// runs the fetch tool with WEFT_ARG_URL set, stores the output in page and,
// on failure, the error text in failure.
func (r *Runner) Install(h Host) {
	for _, name := range r.Names() {
		h.RegisterCommand(name, r.command(h, name))
	}
}

func (r *Runner) command(h Host, name string) registry.CommandFunc {
	return func(ctx context.Context, node *domain.HandlerNode, _ any) bool {
		args := make(map[string]string, len(node.Attrs))
		for k, v := range node.Attrs {
			if strings.EqualFold(k, "Variable") || strings.EqualFold(k, "ErrorVariable") {
				continue
			}
			args[k] = v
		}
		out, err := r.Run(ctx, name, args)
		if err != nil {
			r.logger.Warn("tool failed", "tool", name, "error", err)
			if v, _ := node.Attr("ErrorVariable"); v != "" {
				h.SetVariable(ctx, v, err.Error())
			}
			return false
		}
		if v, _ := node.Attr("Variable"); v != "" {
			h.SetVariable(ctx, v, out)
		}
		return true
	}
}
