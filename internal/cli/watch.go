package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/presentation/tui"
)

// RunWatch runs handlers like Run, then reloads the document and runs them
// again after every change to the file until ctx is done. Reloading re-seeds
// the variables, so each pass starts from the declared state.
func RunWatch(ctx context.Context, opts Options, handlers []string, out io.Writer) error {
	logger := createLogger(opts.Debug)
	engine, closeEngine, err := NewEngine(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	quiet := opts.JSON
	if !quiet {
		tui.PrintBanner(out, weft.Version)
	}

	changes, err := engine.Watch(ctx)
	if err != nil {
		return err
	}
	logger.Info("Starting watcher", "path", opts.File)

	pass := func() error {
		if err := runHandlers(ctx, engine, handlers, logger); err != nil {
			return err
		}
		return WriteState(out, engine.StateSnapshot(), opts.JSON)
	}

	if err := pass(); err != nil {
		return err
	}
	if !quiet {
		tui.SystemMessage(out, "Watching '%s' for changes...", filepath.Base(opts.File))
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping watcher")
			return nil
		case path, ok := <-changes:
			if !ok {
				return nil
			}
			if !quiet {
				tui.SystemMessage(out, "Change detected in '%s'.", filepath.Base(path))
			}
			if err := pass(); err != nil {
				// Keep watching after a failed pass.
				logger.Error("Run failed after reload", "err", err)
				if !quiet {
					tui.SystemMessage(out, "Run failed: %v", err)
				}
			}
		}
	}
}
