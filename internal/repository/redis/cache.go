package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache for booking lists. A nil *Cache is
// valid and caches nothing.
//
// Each list key has a generation counter. Values are stored under
// "<key>:g<generation>" and invalidation bumps the counter, so a load that
// started before an invalidation writes to a generation nobody reads again.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// versioned resolves key to its current generation.
func (c *Cache) versioned(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, keyGeneration(key)).Int64()
	if err == redis.Nil {
		gen = 0
	} else if err != nil {
		return "", err
	}

	return key + ":g" + strconv.FormatInt(gen, 10), nil
}

// lookup decodes the cached value under key. A miss and an undecodable value
// both report ok=false, so the caller reloads and overwrites the entry.
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var out T

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, nil
	}

	return out, true, nil
}

func store(ctx context.Context, c *Cache, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// GetOrSetJSON returns the cached value under key, or calls loader once per
// key generation across concurrent callers and caches its result for ttl.
// Redis failures are not fatal: the loader result is returned uncached.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	// the generation must be read before the loader runs
	vkey, err := c.versioned(ctx, key)
	if err != nil {
		return loader(ctx)
	}

	if v, ok, err := lookup[T](ctx, c, vkey); err == nil && ok {
		return v, nil
	}

	res, err, _ := c.sf.Do(vkey, func() (any, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		_ = store(ctx, c, vkey, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redis.GetOrSetJSON: unexpected %T for %s", res, key)
	}

	return v, nil
}

// InvalidateBookings moves the booking lists touched by a change to userID's
// bookings to a new generation.
func (c *Cache) InvalidateBookings(ctx context.Context, userID string) error {
	if c == nil {
		return nil
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, keyGeneration(KeyUserBookings(userID)))
		pipe.Incr(ctx, keyGeneration(KeyAllBookings()))
		return nil
	})

	return err
}
