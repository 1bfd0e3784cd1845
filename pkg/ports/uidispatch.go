package ports

import "context"

// Dispatcher abstracts the UI-owning execution context.
type Dispatcher interface {
	// CheckAccess reports whether ctx belongs to work running on the UI context.
	CheckAccess(ctx context.Context) bool

	// Post queues fn on the UI context without waiting for it to run.
	Post(fn func(ctx context.Context))
}

// Immediate is a Dispatcher for headless hosts: every caller is the UI context.
type Immediate struct{}

// CheckAccess always returns true.
func (Immediate) CheckAccess(context.Context) bool { return true }

// Post runs fn synchronously on the caller's goroutine.
func (Immediate) Post(fn func(ctx context.Context)) { fn(context.Background()) }
