// Package cache keeps read-through copies of committed results in Redis. The
// database stays authoritative; every method is a no-op on a nil client.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	resultPrefix   = "allocation:result:"
	snapshotPrefix = "snapshot:"
)

// Results caches allocation outcomes by idempotency key.
type Results struct {
	Rdb *redis.Client
	TTL time.Duration
}

// Get decodes the cached result for key into dst and reports whether it was present.
func (c *Results) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c == nil || c.Rdb == nil {
		return false, nil
	}
	b, err := c.Rdb.Get(ctx, resultPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores v under key.
func (c *Results) Put(ctx context.Context, key string, v interface{}) error {
	if c == nil || c.Rdb == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Rdb.Set(ctx, resultPrefix+key, b, c.TTL).Err()
}

// putIfNewer writes the body only when version is above the stored one.
var putIfNewer = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "body", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1`)

// Snapshots caches account snapshots. An older version never replaces a newer one.
type Snapshots struct {
	Rdb *redis.Client
	TTL time.Duration
}

// Put stores body for id at version. It reports whether the cache was updated.
func (c *Snapshots) Put(ctx context.Context, id string, version int64, body interface{}) (bool, error) {
	if c == nil || c.Rdb == nil {
		return false, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return false, err
	}
	n, err := putIfNewer.Run(ctx, c.Rdb, []string{snapshotPrefix + id},
		strconv.FormatInt(version, 10), string(b), strconv.FormatInt(c.TTL.Milliseconds(), 10)).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Get decodes the cached snapshot for id into dst and reports whether it was present.
func (c *Snapshots) Get(ctx context.Context, id string, dst interface{}) (bool, error) {
	if c == nil || c.Rdb == nil {
		return false, nil
	}
	b, err := c.Rdb.HGet(ctx, snapshotPrefix+id, "body").Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate drops the cached snapshot for id.
func (c *Snapshots) Invalidate(ctx context.Context, id string) error {
	if c == nil || c.Rdb == nil {
		return nil
	}
	return c.Rdb.Del(ctx, snapshotPrefix+id).Err()
}
