package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/weft/pkg/ports"
)

func TestLocker_NoLeakAfterRelease(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		unlock, err := l.Lock(ctx, fmt.Sprintf("session-%d", i), time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	}
	assert.Equal(t, 0, l.Active())
}

func TestLocker_SerialisesOneKey(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "s", time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = unlock(ctx)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Active())
}

func TestLocker_ContextCancelled(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "s", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "s", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	assert.Equal(t, 0, l.Active())
}

func TestLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewLocker()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "s", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := l.Lock(ctx, "s", time.Second)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

type fakeRemote struct {
	locks, unlocks int
	failLock       bool
	failUnlock     bool
}

func (f *fakeRemote) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.failLock {
		return nil, errors.New("backend down")
	}
	f.locks++
	return func(context.Context) error {
		f.unlocks++
		if f.failUnlock {
			return errors.New("expired")
		}
		return nil
	}, nil
}

func TestLocker_WithDistributed(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	l := NewLocker(WithDistributed(remote))

	unlock, err := l.Lock(ctx, "s", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
	assert.Equal(t, 1, remote.locks)
	assert.Equal(t, 1, remote.unlocks)

	remote.failUnlock = true
	unlock, err = l.Lock(ctx, "s", time.Second)
	require.NoError(t, err)
	assert.Error(t, unlock(ctx))
	assert.Equal(t, 0, l.Active(), "local lock is released even when the remote unlock fails")

	remote.failLock = true
	_, err = l.Lock(ctx, "s", time.Second)
	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, 0, l.Active())
}
