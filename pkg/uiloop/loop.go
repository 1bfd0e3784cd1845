// Package uiloop provides the UI-owning execution context.
//
// A Loop drains a FIFO queue of work items on a single goroutine. Work running
// on the loop receives a context carrying a marker, so CheckAccess can tell
// exactly whether a caller is already on the loop without goroutine ids.
//
//	loop := uiloop.New()
//	go loop.Run(ctx)
//	defer loop.Close()
//
//	loop.Post(func(ctx context.Context) { renderer.SetProperty(...) })
package uiloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/weft/internal/logging"
)

// ErrClosed is returned when work is submitted to a closed loop.
var ErrClosed = errors.New("ui loop is closed")

type loopKey struct{}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for panics raised by posted work.
func WithLogger(l *slog.Logger) Option {
	return func(loop *Loop) {
		loop.logger = l
	}
}

// Loop serialises work items onto one goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func(context.Context)
	wake    chan struct{}

	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	running   atomic.Bool

	logger *slog.Logger
}

// New creates a loop. Call Run to start draining it.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run processes queued work until ctx is cancelled or Close is called.
// It must be called once, from the goroutine that owns the UI.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("ui loop already running")
	}
	loopCtx := context.WithValue(ctx, loopKey{}, l)

	for {
		select {
		case <-ctx.Done():
			l.discard()
			return ctx.Err()
		case <-l.done:
			l.discard()
			return nil
		case <-l.wake:
			for _, fn := range l.take() {
				l.execute(loopCtx, fn)
			}
		}
	}
}

// CheckAccess reports whether ctx belongs to work running on this loop.
func (l *Loop) CheckAccess(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Post queues fn without waiting. It never blocks; work posted after Close is dropped.
func (l *Loop) Post(fn func(ctx context.Context)) {
	if l.closed.Load() {
		l.logger.Debug("ui loop closed, dropping work")
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Invoke runs fn on the loop and waits for it. When ctx is already on the loop
// fn runs inline.
func (l *Loop) Invoke(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.CheckAccess(ctx) {
		return fn(ctx)
	}
	if l.closed.Load() {
		return ErrClosed
	}

	result := make(chan error, 1)
	l.Post(func(loopCtx context.Context) {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ui work panicked: %v", r)
			}
			result <- err
		}()
		err = fn(loopCtx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	case err := <-result:
		return err
	}
}

// Pending returns the number of queued items.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Close stops the loop. Queued work that has not started is dropped.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

func (l *Loop) take() []func(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

func (l *Loop) discard() {
	if n := len(l.take()); n > 0 {
		l.logger.Debug("ui loop stopped with pending work", "dropped", n)
	}
}

func (l *Loop) execute(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("ui work panicked", "err", fmt.Errorf("%v", r))
		}
	}()
	fn(ctx)
}
