package domain

// Binding links a state key to a property of a UI target.
type Binding struct {
	Key      string `json:"key"`
	TargetID string `json:"target_id"`
	Property string `json:"property"`
	Format   string `json:"format,omitempty"`
	Active   bool   `json:"active"`
}
