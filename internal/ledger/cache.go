package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const stockVersionKey = "stock:version"

// Cache keeps the current-stock dashboard projection in Redis. Invalidation is
// by version bump: every ledger mutation increments the version, which changes
// the key every reader computes. A stale value for at most one in-flight read
// is acceptable for dashboard traffic; as-of reads never touch the cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, stockVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, stockVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates all cached projections.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, stockVersionKey).Err()
}

// FetchProjections loads the cached dashboard projection or populates it via loader.
func (c *Cache) FetchProjections(ctx context.Context, loader func(context.Context) ([]StockProjection, error)) ([]StockProjection, error) {
	if loader == nil {
		return nil, errors.New("ledger: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.version(ctx)
	if err != nil {
		return loader(ctx)
	}
	key := fmt.Sprintf("stock:all:%d", ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached []StockProjection
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	projections, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(projections); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return projections, nil
}
