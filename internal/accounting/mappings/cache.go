package mappings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "ledger:mappings:version"

// Cache keeps role resolutions in Redis. Every mapping write bumps a version
// counter embedded in the keys, so stale entries simply stop being read.
// Readers take the version once and use it for both Get and Set; a bump that
// lands while a resolution is loading leaves that result under the dead version.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache returns nil when client is nil; a nil *Cache is a no-op.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

func cacheKey(version int64, role string) string {
	return fmt.Sprintf("ledger:mappings:resolve:%s:%d", role, version)
}

// Get returns the resolution cached under version. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, version int64, role string) (Resolution, bool, error) {
	if c == nil {
		return Resolution{}, false, nil
	}
	payload, err := c.client.Get(ctx, cacheKey(version, role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Resolution{}, false, nil
	}
	if err != nil {
		return Resolution{}, false, err
	}
	var res Resolution
	if err := json.Unmarshal(payload, &res); err != nil {
		return Resolution{}, false, err
	}
	return res, true, nil
}

// Set stores a resolution under version, which must be the one read before
// the resolution was loaded.
func (c *Cache) Set(ctx context.Context, version int64, res Resolution) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(version, res.Role), raw, c.ttl).Err()
}

// Bump invalidates all cached resolutions.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
