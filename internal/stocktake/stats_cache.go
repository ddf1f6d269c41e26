package stocktake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const statsVersionKey = "stocktake:stats:version"

// StatsCache caches session progress in Redis behind a version counter.
// Invalidation bumps the version so stale entries simply expire; concurrent
// misses for the same session collapse into one recompute.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewStatsCache instantiates the cache helper.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func (c *StatsCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, statsVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, statsVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, statsVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *StatsCache) key(ctx context.Context, sessionID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("stocktake:stats:%d:%d", sessionID, ver), nil
}

// GetOrCompute loads the cached progress or populates it using the loader.
func (c *StatsCache) GetOrCompute(ctx context.Context, sessionID int64, loader func(context.Context) (*Progress, error)) (*Progress, error) {
	if loader == nil {
		return nil, errors.New("stocktake: stats loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var p Progress
		if err := json.Unmarshal(payload, &p); err == nil {
			return &p, nil
		}
	} else if err != redis.Nil {
		return nil, err
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		p, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Progress), nil
}

// Invalidate bumps the version counter, orphaning every cached entry.
func (c *StatsCache) Invalidate(ctx context.Context, sessionID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, statsVersionKey).Err()
}
