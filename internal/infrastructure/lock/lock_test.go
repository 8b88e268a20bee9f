package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func assertMutualExclusion(t *testing.T, l locker) {
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "investor-1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLocal_MutualExclusion(t *testing.T) {
	assertMutualExclusion(t, &Local{})
}

func TestRedis_MutualExclusion(t *testing.T) {
	rdb, _ := setupRedis(t)
	assertMutualExclusion(t, &Redis{Rdb: rdb, RetryPeriod: time.Millisecond})
}

func TestLocal_DifferentKeysDoNotBlock(t *testing.T) {
	l := &Local{}
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_LockHonoursContext(t *testing.T) {
	l := &Local{}
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_ReleaseOnlyOwnLease(t *testing.T) {
	rdb, mr := setupRedis(t)
	l := &Redis{Rdb: rdb, TTL: time.Second, RetryPeriod: time.Millisecond}

	unlock, err := l.Lock(context.Background(), "inv")
	require.NoError(t, err)

	// Lease expires and another holder takes over.
	mr.FastForward(2 * time.Second)
	unlock2, err := l.Lock(context.Background(), "inv")
	require.NoError(t, err)

	// The stale holder must not release the new lease.
	unlock()
	assert.True(t, mr.Exists("lock:inv"))

	unlock2()
	assert.False(t, mr.Exists("lock:inv"))
}

func TestFences(t *testing.T) {
	rdb, _ := setupRedis(t)
	ctx := context.Background()
	for name, f := range map[string]interface {
		Advance(context.Context) (int64, error)
		Current(context.Context) (int64, error)
	}{
		"redis": &RedisFence{Rdb: rdb, Key: "revaluation:generation"},
		"local": &LocalFence{},
	} {
		t.Run(name, func(t *testing.T) {
			cur, err := f.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), cur)

			gen, err := f.Advance(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), gen)

			cur, err = f.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, gen, cur)
		})
	}
}
