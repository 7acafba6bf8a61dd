package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Katia-D15/book-my-table/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a JSON read-through cache. A nil *Cache is valid and caches
// nothing, so services run unchanged without redis.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func (c *Cache) SetString(
	ctx context.Context,
	key string,
	val string,
	ttl time.Duration,
) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

// DelMatch deletes every key matching pattern. SCAN is used so a large
// keyspace never blocks the server.
func (c *Cache) DelMatch(ctx context.Context, pattern string) error {
	if c == nil {
		return nil
	}

	var batch []string
	iter := c.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := c.Del(ctx, batch...); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}

	return c.Del(ctx, batch...)
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

func SetJSON(
	ctx context.Context,
	c *Cache,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.SetString(ctx, key, string(b), ttl)
}

// GetOrSetJSON returns the cached value under key or loads, stores and
// returns it. Concurrent misses on one key share a single load. Redis read
// errors fall through to the loader.
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

	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		if v2, ok2, err2 := GetJSON[T](ctx, c, key); err2 == nil && ok2 {
			return v2, nil
		}
		v3, err3 := loader(ctx)
		if err3 != nil {
			return nil, err3
		}
		_ = SetJSON(ctx, c, key, v3, ttl)
		return v3, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("type assertion failed")
	}

	return v, nil
}

// versionTTL outlives every cached answer, so a version that expires and
// restarts at zero cannot revive an old key.
const versionTTL = 7 * 24 * time.Hour

// AvailabilityKey reads the current inventory generation and date version
// and returns the key an answer loaded from now on belongs under. ok is false
// when the cache is off or the versions cannot be read; the caller should
// skip caching then.
func (c *Cache) AvailabilityKey(
	ctx context.Context,
	date time.Time,
	at domain.TimeOfDay,
	guests int,
) (key string, ok bool) {
	if c == nil {
		return "", false
	}

	vals, err := c.rdb.MGet(ctx, KeyAvailabilityGeneration(), KeyAvailabilityVersion(date)).Result()
	if err != nil || len(vals) != 2 {
		return "", false
	}

	gen, err := parseVersion(vals[0])
	if err != nil {
		return "", false
	}
	ver, err := parseVersion(vals[1])
	if err != nil {
		return "", false
	}

	return KeyAvailability(date, gen, ver, at, guests), true
}

// parseVersion reads an MGET value; a missing key is version 0.
func parseVersion(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}

	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected version type %T", v)
	}

	return strconv.ParseInt(s, 10, 64)
}

// InvalidateDate bumps the version of date, which orphans answers that a
// reader may still be loading from the old state, then deletes the answers
// already stored.
func (c *Cache) InvalidateDate(ctx context.Context, date time.Time) error {
	if c == nil {
		return nil
	}

	key := KeyAvailabilityVersion(date)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, versionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return c.DelMatch(ctx, PatternAvailability(date))
}

// InvalidateTables drops the inventory and every availability answer, which
// all depend on it.
func (c *Cache) InvalidateTables(ctx context.Context) error {
	if c == nil {
		return nil
	}

	if err := c.rdb.Incr(ctx, KeyAvailabilityGeneration()).Err(); err != nil {
		return err
	}
	if err := c.Del(ctx, KeyTables()); err != nil {
		return err
	}
	return c.DelMatch(ctx, PatternAllAvailability())
}
