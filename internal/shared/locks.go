package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when another holder owns the lock.
var ErrLockNotAcquired = errors.New("shared: lock held by another worker")

// RecurringTickLockKey builds the redis key guarding scheduler ticks for a business date.
func RecurringTickLockKey(asOf time.Time) string {
	return fmt.Sprintf("ledger:recurring:tick:%s:lock", asOf.Format("2006-01-02"))
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements short-lived mutual exclusion across workers with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker wraps a redis client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes key for ttl. When the lock is held elsewhere it returns
// ErrLockNotAcquired. The returned release func is safe to call once the
// lock expired or was taken over.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
	return release, nil
}
