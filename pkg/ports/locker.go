package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serialises snapshot writes for one session across engine instances.
type DistributedLocker interface {
	// Lock blocks until key is held, ctx is done, or the backend gives up.
	// The returned UnlockFunc must always be called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
