package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/ports"
)

// lockEntry is a one-slot semaphore plus the number of callers holding or
// waiting for it.
type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Locker implements ports.DistributedLocker with per-key reference-counted locks.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	distributed ports.DistributedLocker
	logger      *slog.Logger
}

var _ ports.DistributedLocker = (*Locker)(nil)

// Option configures a Locker.
type Option func(*Locker)

// WithDistributed also takes d after the local lock.
func WithDistributed(d ports.DistributedLocker) Option {
	return func(l *Locker) {
		l.distributed = d
	}
}

// WithLogger sets the logger for release failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// NewLocker creates an empty Locker.
func NewLocker(opts ...Option) *Locker {
	l := &Locker{
		locks:  make(map[string]*lockEntry),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Locker) acquire(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.locks, key)
	}
}

// Lock blocks until key is free or ctx is done. ttl only applies to the
// distributed lock; the local lock is held until unlock.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	entry := l.acquire(key)
	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key)
		return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
	}

	localUnlock := func() {
		<-entry.sem
		l.release(key)
	}

	if l.distributed == nil {
		var once sync.Once
		return func(context.Context) error {
			once.Do(localUnlock)
			return nil
		}, nil
	}

	remoteUnlock, err := l.distributed.Lock(ctx, key, ttl)
	if err != nil {
		localUnlock()
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			defer localUnlock()
			if err = remoteUnlock(ctx); err != nil {
				l.logger.Warn("failed to release distributed lock (will expire via TTL)", "key", key, "err", err)
			}
		})
		return err
	}, nil
}

// Active reports how many keys currently have a holder or a waiter.
func (l *Locker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
