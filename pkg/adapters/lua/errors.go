package lua

import "errors"

var (
	// ErrModuleClosed is returned when invoking a closed module.
	ErrModuleClosed = errors.New("lua module is closed")

	// ErrEntryPointNotFound is returned when Invoke names a missing function.
	ErrEntryPointNotFound = errors.New("lua entry point not found")
)
