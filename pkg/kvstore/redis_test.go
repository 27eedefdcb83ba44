package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestIncrWindowCountsAndExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.IncrWindow(ctx, "ratelimit:alice", time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Advance past the window; the counter restarts.
	mr.FastForward(2 * time.Second)
	got, err := store.IncrWindow(ctx, "ratelimit:alice", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestDistributedLock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "lock:warmup", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLock(ctx, "lock:warmup", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a held lock cannot be re-acquired")

	require.NoError(t, store.ReleaseLock(ctx, "lock:warmup"))
	ok, err = store.AcquireLock(ctx, "lock:warmup", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.AcquireLock(ctx, "lock:ttl", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	ok, err = store.AcquireLock(ctx, "lock:ttl", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lock is free for the taking")
}

func TestGetSetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	val, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val, "a missing key reads as empty, not an error")

	require.NoError(t, store.Set(ctx, "greeting", "hello", 0))
	val, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", val)

	require.NoError(t, store.Ping(ctx))
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not-a-redis-url", 10)
	assert.Error(t, err)
}
