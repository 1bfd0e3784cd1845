package domain

import "errors"

// ErrHandlerNotFound is returned when a handler name is not registered.
var ErrHandlerNotFound = errors.New("handler not found")

// ErrTargetNotFound is returned when a control id cannot be located by the renderer.
var ErrTargetNotFound = errors.New("target not found")

// ErrUnknownProperty is returned when a control kind has no setter for a property.
var ErrUnknownProperty = errors.New("unknown property")

// ErrPluginNotFound is returned when a plugin name is neither loaded nor registered as a built-in.
var ErrPluginNotFound = errors.New("plugin not found")

// ErrSnapshotNotFound is returned when no persisted state exists for a session ID.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSnapshotMismatch is returned when a persisted snapshot does not match the declared variable types.
var ErrSnapshotMismatch = errors.New("snapshot does not match the declared types")
