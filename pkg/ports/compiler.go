package ports

import "fmt"

// Diagnostic describes a compilation problem in plugin source.
type Diagnostic struct {
	ModuleID string `json:"module_id"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", d.ModuleID, d.Line, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.ModuleID, d.Message)
}

// CompileError carries the diagnostics of a failed compilation.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}
	return fmt.Sprintf("compilation failed: %s", e.Diagnostics[0])
}

// Module is a compiled plugin unit.
type Module interface {
	// ID returns the module identifier given at compile time.
	ID() string

	// EntryPoints lists the callable functions exposed by the module.
	EntryPoints() []string

	// Invoke calls an entry point. A failure inside the module is returned as an error.
	Invoke(entryPoint string, args ...any) (any, error)

	// Close releases the module's resources.
	Close() error
}

// Compiler turns plugin source into a Module. On failure the error is a *CompileError.
type Compiler interface {
	Compile(source, moduleID string, refs []string) (Module, error)
}
