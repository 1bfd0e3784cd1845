package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventHandlerStart  EventType = "handler_start"
	EventHandlerFinish EventType = "handler_finish"
	EventNodeError     EventType = "node_error"
	EventBindingApply  EventType = "binding_apply"
	EventBindingFail   EventType = "binding_fail"
	EventPlugin        EventType = "plugin_event"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// HandlerEvent reports the start or end of a handler execution.
type HandlerEvent struct {
	EventBase
	ExecutionID string        `json:"execution_id"`
	Handler     string        `json:"handler"`
	Nodes       int           `json:"nodes,omitempty"`
	Failures    int           `json:"failures,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// NodeErrorEvent reports a single node failure inside a handler.
type NodeErrorEvent struct {
	EventBase
	ExecutionID string `json:"execution_id"`
	Handler     string `json:"handler"`
	Kind        string `json:"kind"`
	Err         error  `json:"-"`
}

// BindingEvent reports a binding push to a target property.
type BindingEvent struct {
	EventBase
	Binding Binding `json:"binding"`
	Value   string  `json:"value,omitempty"`
	Err     error   `json:"-"`
}

// PluginEvent reports a lifecycle event fanned out to plugins.
type PluginEvent struct {
	EventBase
	Name     string `json:"name"`
	Plugins  int    `json:"plugins"`
	Failures int    `json:"failures"`
}

// Hooks defines callbacks for engine observability.
// Every field is optional.
type Hooks struct {
	OnHandlerStart   func(context.Context, *HandlerEvent)
	OnHandlerFinish  func(context.Context, *HandlerEvent)
	OnNodeError      func(context.Context, *NodeErrorEvent)
	OnBindingApplied func(context.Context, *BindingEvent)
	OnBindingFailed  func(context.Context, *BindingEvent)
	OnPluginEvent    func(context.Context, *PluginEvent)
}

// Merge returns hooks that call h first and then other for every event.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnHandlerStart:   chain(h.OnHandlerStart, other.OnHandlerStart),
		OnHandlerFinish:  chain(h.OnHandlerFinish, other.OnHandlerFinish),
		OnNodeError:      chain(h.OnNodeError, other.OnNodeError),
		OnBindingApplied: chain(h.OnBindingApplied, other.OnBindingApplied),
		OnBindingFailed:  chain(h.OnBindingFailed, other.OnBindingFailed),
		OnPluginEvent:    chain(h.OnPluginEvent, other.OnPluginEvent),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
