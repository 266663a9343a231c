package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps computed dashboard stats in Redis for a short TTL so that
// repeated loads of the landing screen do not re-run the count queries.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func statsKey(companyID int64) string {
	return "dashboard:stats:" + strconv.FormatInt(companyID, 10)
}

// FetchStats loads cached stats or populates them using the loader.
// A nil cache or nil client degrades to calling the loader directly.
func (c *Cache) FetchStats(ctx context.Context, companyID int64, loader func(context.Context) (Stats, error)) (Stats, error) {
	if loader == nil {
		return Stats{}, errors.New("dashboard: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := statsKey(companyID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var stats Stats
		if err := json.Unmarshal(payload, &stats); err == nil {
			return stats, nil
		}
		// Corrupt payload falls through to a fresh load.
	} else if !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}
	stats, err := loader(ctx)
	if err != nil {
		return Stats{}, err
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return Stats{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Invalidate drops the cached stats for a company.
func (c *Cache) Invalidate(ctx context.Context, companyID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, statsKey(companyID)).Err()
}
