package observability

import "github.com/aretw0/weft/pkg/domain"

// Combine merges hook sets into one. Each event reaches the sets in order.
func Combine(hooks ...domain.Hooks) domain.Hooks {
	var out domain.Hooks
	for _, h := range hooks {
		out = out.Merge(h)
	}
	return out
}
