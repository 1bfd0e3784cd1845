package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/state"
)

// Engine is the part of the engine the runner drives. *weft.Engine implements it.
type Engine interface {
	ExecuteHandlerByName(ctx context.Context, name string) bool
	SetVariable(ctx context.Context, name string, value any)
	StateSnapshot() map[string]any
	HandlerNames() []string
	SubscribeState(fn state.Observer) (unsubscribe func())
	SaveState(ctx context.Context, sessionID string) error
}

// Runner handles the interactive command loop.
type Runner struct {
	Handler   IOHandler
	Logger    *slog.Logger
	SessionID string
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{Logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run reads and applies commands until input ends, a quit command arrives or
// ctx is done. Bad commands and unknown handlers are reported to the handler
// and the loop continues. A failed save stops the loop.
func (r *Runner) Run(ctx context.Context, engine Engine) error {
	var (
		mu      sync.Mutex
		changes []Change
	)
	unsubscribe := engine.SubscribeState(func(_ context.Context, c state.Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, Change{Name: c.Name, Value: c.New, Deleted: c.Deleted})
	})
	defer unsubscribe()
	drain := func() []Change {
		mu.Lock()
		defer mu.Unlock()
		out := changes
		changes = nil
		return out
	}

	for {
		cmd, err := r.Handler.Read(ctx)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, ErrUnknownCommand):
			if err := r.Handler.Write(ctx, Output{Type: OutputError, Error: err.Error()}); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("input error: %w", err)
		}
		if cmd.Kind == CommandQuit {
			return nil
		}

		drain()
		out := r.apply(ctx, engine, cmd)
		changed := drain()
		if out.Type == OutputChanges {
			out.Changes = changed
		}
		if err := r.Handler.Write(ctx, out); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
		if len(changed) > 0 && r.SessionID != "" {
			if err := engine.SaveState(ctx, r.SessionID); err != nil {
				return fmt.Errorf("critical persistence error: %w", err)
			}
			r.Logger.Debug("state saved", "session_id", r.SessionID, "changes", len(changed))
		}
	}
}

func (r *Runner) apply(ctx context.Context, engine Engine, cmd Command) Output {
	switch cmd.Kind {
	case CommandExecute:
		if !engine.ExecuteHandlerByName(ctx, cmd.Name) {
			return Output{Type: OutputError, Handler: cmd.Name, Error: fmt.Sprintf("%v: %s", domain.ErrHandlerNotFound, cmd.Name)}
		}
		return Output{Type: OutputChanges, Handler: cmd.Name}
	case CommandSet:
		engine.SetVariable(ctx, cmd.Name, cmd.Value)
		return Output{Type: OutputChanges}
	case CommandGet:
		v, ok := engine.StateSnapshot()[cmd.Name]
		if !ok {
			return Output{Type: OutputError, Name: cmd.Name, Error: fmt.Sprintf("variable %q is not set", cmd.Name)}
		}
		return Output{Type: OutputValue, Name: cmd.Name, Value: v}
	case CommandState:
		return Output{Type: OutputState, State: engine.StateSnapshot()}
	case CommandHandlers:
		return Output{Type: OutputHandlers, Items: engine.HandlerNames()}
	}
	return Output{Type: OutputError, Error: fmt.Sprintf("%v: %q", ErrUnknownCommand, cmd.Kind)}
}
