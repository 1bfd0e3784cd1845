package runner

import "log/slog"

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithInputHandler configures the IOHandler. The default is a TextHandler on
// Stdin and Stdout.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithSessionID saves the state under id after every command that changed it.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}
