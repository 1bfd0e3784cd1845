package ports

// Target is an opaque handle to a UI element returned by Renderer.Locate.
type Target any

// Renderer is the boundary to the widget tree.
// SetProperty must be safe to call from any goroutine.
type Renderer interface {
	// Locate resolves a control id to a live target.
	Locate(id string) (Target, bool)

	// SetProperty writes a property on the target.
	SetProperty(target Target, name string, value any) error

	// GetProperty reads a property from the target.
	GetProperty(target Target, name string) (any, bool)
}
