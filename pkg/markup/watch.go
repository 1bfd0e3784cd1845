package markup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/weft/internal/logging"
)

// DefaultDebounce coalesces bursts of writes from editors.
const DefaultDebounce = 100 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WithDebounce sets how long Watch waits for writes to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		c.debounce = d
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		c.logger = l
	}
}

// Watch reports changes to the file at path until ctx is done. The directory is
// watched so that editors replacing the file are seen. Each value sent is the
// path; a pending notification is dropped if the receiver is still busy.
func Watch(ctx context.Context, path string, opts ...WatchOption) (<-chan string, error) {
	cfg := watchConfig{debounce: DefaultDebounce, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	out := make(chan string, 1)
	go func() {
		defer close(out)
		defer w.Close()

		var fire <-chan time.Time
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(abs) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(cfg.debounce)
				fire = timer.C
			case <-fire:
				fire = nil
				cfg.logger.Debug("document changed", "path", path)
				select {
				case out <- path:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cfg.logger.Warn("watch error", "path", path, "err", err)
			}
		}
	}()
	return out, nil
}
