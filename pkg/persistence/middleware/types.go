// Package middleware wraps snapshot stores with extra behavior.
//
// Wrappers compose: Chain(store, NewPIIMiddleware(...), enc) masks first and
// encrypts what is left.
package middleware

import "github.com/aretw0/weft/pkg/ports"

// Middleware allows wrapping a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore

// Chain applies mws to store. The first middleware sees calls first.
func Chain(store ports.SnapshotStore, mws ...Middleware) ports.SnapshotStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
