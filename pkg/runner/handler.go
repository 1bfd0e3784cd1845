package runner

import (
	"context"
	"errors"
)

// Command kinds.
const (
	CommandExecute  = "execute"
	CommandSet      = "set"
	CommandGet      = "get"
	CommandState    = "state"
	CommandHandlers = "handlers"
	CommandQuit     = "quit"
)

// Output types.
const (
	OutputChanges  = "changes"
	OutputState    = "state"
	OutputValue    = "value"
	OutputHandlers = "handlers"
	OutputError    = "error"
)

// ErrUnknownCommand is returned by handlers for input they cannot parse.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one request read from the user.
type Command struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Change is one variable written while a command ran.
type Change struct {
	Name    string `json:"name"`
	Value   any    `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Output is one response written back.
type Output struct {
	Type    string         `json:"type"`
	Handler string         `json:"handler,omitempty"`
	Name    string         `json:"name,omitempty"`
	Value   any            `json:"value,omitempty"`
	Changes []Change       `json:"changes,omitempty"`
	State   map[string]any `json:"state,omitempty"`
	Items   []string       `json:"items,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI) and JSON (structured) modes.
type IOHandler interface {
	// Read blocks for the next command. It returns io.EOF when input ends and
	// ctx.Err() when ctx is done first. ErrUnknownCommand is not fatal.
	Read(ctx context.Context) (Command, error)

	// Write presents one response.
	Write(ctx context.Context, out Output) error
}
