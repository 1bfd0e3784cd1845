// Package plugin manages extension modules.
//
// A Plugin receives a Host handle in OnLoad, through which it registers
// commands and functions, reads and writes state and subscribes to changes.
// Everything registered through the handle is owned by the plugin and removed
// when it unloads or is replaced. Built-in plugins are registered as factories
// and only instantiated when first ensured.
package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/weft/pkg/registry"
	"github.com/aretw0/weft/pkg/state"
)

// ErrInvalidPlugin is returned for plugins without a name.
var ErrInvalidPlugin = errors.New("invalid plugin")

// Info describes a plugin.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// Plugin is an extension module.
type Plugin interface {
	Info() Info

	// OnLoad wires the plugin into the host. An error aborts the registration.
	OnLoad(ctx context.Context, host Host) error

	// OnUnload releases plugin resources. Errors are logged, never fatal.
	OnUnload(ctx context.Context) error

	// OnEvent receives lifecycle events fanned out by the manager.
	OnEvent(ctx context.Context, name string, payload any) error
}

// Factory creates a plugin instance.
type Factory func() Plugin

// Host is the handle a plugin uses to reach the engine.
type Host interface {
	// RegisterCommand adds a command owned by the plugin.
	RegisterCommand(name string, fn registry.CommandFunc)

	// RegisterFunction adds an interpolation function owned by the plugin.
	RegisterFunction(name string, fn registry.FunctionFunc)

	// GetVariable reads a state variable.
	GetVariable(name string) (any, bool)

	// SetVariable writes a state variable.
	SetVariable(ctx context.Context, name string, value any)

	// ExecuteHandler runs a named handler. It reports false when the handler is unknown.
	ExecuteHandler(ctx context.Context, name string) bool

	// Subscribe observes state changes until the plugin unloads.
	Subscribe(fn state.Observer)

	// Logger returns a logger scoped to the plugin.
	Logger() *slog.Logger
}

// Base provides no-op lifecycle methods for plugins to embed.
type Base struct {
	Meta Info
}

// Info returns the embedded metadata.
func (b Base) Info() Info { return b.Meta }

// OnLoad does nothing.
func (Base) OnLoad(context.Context, Host) error { return nil }

// OnUnload does nothing.
func (Base) OnUnload(context.Context) error { return nil }

// OnEvent ignores the event.
func (Base) OnEvent(context.Context, string, any) error { return nil }
