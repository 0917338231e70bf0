package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client)
	ctx := context.Background()
	key := RecurringTickLockKey(time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "ledger:recurring:tick:2024-03-01:lock", key)

	release, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	release()
	require.False(t, srv.Exists(key))

	release2, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release2()
}

func TestRedisLockerExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// Releasing the expired holder must not drop the new owner's lock.
	stale()
	require.True(t, srv.Exists("k"))
	fresh()
}
