package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return client, mr
}

// exerciseLocker checks the behavior every Locker shares
func exerciseLocker(t *testing.T, l Locker) {
	ctx := context.Background()

	release, err := l.TryLock(ctx, "node-a")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "node-a")
	assert.ErrorIs(t, err, ErrLocked)

	other, err := l.TryLock(ctx, "node-b")
	require.NoError(t, err, "keys are independent")
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.ErrorIs(t, release(ctx), ErrNotHeld)

	again, err := l.TryLock(ctx, "node-a")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

// TestLocal verifies the in-process locker
func TestLocal(t *testing.T) {
	exerciseLocker(t, NewLocal())
}

// TestRedis verifies the Redis locker
func TestRedis(t *testing.T) {
	client, _ := setupTestRedis(t)
	exerciseLocker(t, NewRedis(client, "collect:lock:", time.Minute, zaptest.NewLogger(t)))
}

// TestRedis_Expiry verifies an expired lock can be taken over
func TestRedis_Expiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedis(client, "lock:", time.Second, nil)
	ctx := context.Background()

	stale, err := l.TryLock(ctx, "node")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := l.TryLock(ctx, "node")
	require.NoError(t, err, "expired lock should be free")

	assert.ErrorIs(t, stale(ctx), ErrNotHeld, "stale holder must not release the new lock")
	assert.True(t, mr.Exists("lock:node"))
	require.NoError(t, fresh(ctx))
	assert.False(t, mr.Exists("lock:node"))
}
