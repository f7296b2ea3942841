package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey   = "authz:version"
	invalidateChannel = "authz.invalidate"
)

// Cache wraps Redis based caching of resolved profile grants with
// versioning controls. A nil client degrades to pass-through loads so the
// read path never depends on Redis availability.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// ProfileKey composes the cache key for one profile at the current version.
func (c *Cache) ProfileKey(ctx context.Context, profileID int64) (string, error) {
	if c == nil || c.client == nil {
		return profileKey(profileID, 0), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return profileKey(profileID, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("resolve: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached profile by incrementing the global version.
// Catalog mutations use this since they can change any profile's set.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, invalidateChannel, strconv.FormatInt(ver, 10)).Err()
}

// InvalidateProfiles drops cached entries for the given profiles at the
// current version. Grant mutations use this narrower path.
func (c *Cache) InvalidateProfiles(ctx context.Context, profileIDs []int64) error {
	if c == nil || c.client == nil || len(profileIDs) == 0 {
		return nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(profileIDs))
	for _, id := range profileIDs {
		keys = append(keys, profileKey(id, ver))
	}
	return c.client.Del(ctx, keys...).Err()
}

func profileKey(profileID, version int64) string {
	return fmt.Sprintf("authz:profile:%d:%d", profileID, version)
}
