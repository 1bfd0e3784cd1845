package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/tui"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/runner"
)

// Run loads opts.File, runs handlers in order and prints the final state.
// With a session the state is restored first and saved afterwards.
func Run(ctx context.Context, opts Options, handlers []string, out io.Writer) error {
	logger := createLogger(opts.Debug)
	engine, closeEngine, err := NewEngine(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := restoreSession(ctx, engine, opts, logger); err != nil {
		return err
	}
	if err := runHandlers(ctx, engine, handlers, logger); err != nil {
		return err
	}
	if opts.Session != "" {
		if err := engine.SaveState(ctx, opts.Session); err != nil {
			return err
		}
		logger.Info("session saved", "session_id", opts.Session)
	}
	return WriteState(out, engine.StateSnapshot(), opts.JSON)
}

func restoreSession(ctx context.Context, engine *weft.Engine, opts Options, logger *slog.Logger) error {
	if opts.Session == "" {
		return nil
	}
	if opts.Fresh {
		if err := engine.DeleteState(ctx, opts.Session); err != nil {
			return err
		}
		logger.Info("session discarded", "session_id", opts.Session)
		return nil
	}
	err := engine.RestoreState(ctx, opts.Session)
	switch {
	case errors.Is(err, domain.ErrSnapshotNotFound):
		logger.Info("session created", "session_id", opts.Session)
		return nil
	case err != nil:
		return err
	}
	logger.Info("session resumed", "session_id", opts.Session)
	return nil
}

// Interactive loads opts.File, runs handlers, then reads commands from in
// until it ends. With opts.JSON the exchange is JSON-Lines. A session is
// restored first and saved after every command that changed the state.
func Interactive(ctx context.Context, opts Options, handlers []string, in io.Reader, out io.Writer) error {
	logger := createLogger(opts.Debug)
	engine, closeEngine, err := NewEngine(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	if err := restoreSession(ctx, engine, opts, logger); err != nil {
		return err
	}
	if err := runHandlers(ctx, engine, handlers, logger); err != nil {
		return err
	}

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		var textOpts []runner.TextHandlerOption
		if isTerminal(out) {
			tui.SystemMessage(out, "weft %s: type a handler name, set <name> <value>, state or quit.", strings.TrimSpace(weft.Version))
			textOpts = append(textOpts, runner.WithPrompt("> "))
		}
		handler = runner.NewTextHandler(in, out, textOpts...)
	}
	r := runner.NewRunner(
		runner.WithInputHandler(handler),
		runner.WithSessionID(opts.Session),
		runner.WithLogger(logger),
	)
	return r.Run(ctx, engine)
}

// runHandlers stops at the first unknown name. Node failures inside a handler
// are logged by the engine and do not stop the sequence.
func runHandlers(ctx context.Context, engine *weft.Engine, names []string, logger *slog.Logger) error {
	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, ok := engine.Execute(ctx, name, nil)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrHandlerNotFound, name)
		}
		logger.Debug("handler finished", "handler", name, "nodes", res.Nodes, "failures", res.Failures, "duration", res.Duration)
	}
	return nil
}
