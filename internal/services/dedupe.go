package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers "has this event id been seen before" with a TTL, so
// webhook redeliveries are detected without unbounded growth.
type Deduper interface {
	// Seen marks the key and reports whether it already existed.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper implements Deduper with SETNX, which makes dedupe work
// across instances.
type RedisDeduper struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisDeduper creates a redis-backed deduper
func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, prefix: "webhook:seen:"}
}

var _ Deduper = (*RedisDeduper)(nil)

func (d *RedisDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := d.rdb.SetNX(ctx, d.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// MemoryDeduper is the single-instance fallback used when redis is not
// configured, and in tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDeduper creates an in-memory deduper
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time)}
}

var _ Deduper = (*MemoryDeduper)(nil)

func (d *MemoryDeduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true, nil
	}
	d.seen[key] = now.Add(ttl)
	return false, nil
}
