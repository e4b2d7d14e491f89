// Package cache holds short-lived JSON snapshots of read models, backed by
// Redis or by process memory.
package cache

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
	DefaultTTL    = 30 * time.Second
	DefaultPrefix = "isbar:rounding:"
	scanBatch     = 100
)

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Redis stores snapshots under a key prefix with a fixed TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) genKey() string {
	return r.prefix + "gen"
}

func (r *Redis) key(gen uint64, k string) string {
	return r.prefix + "snap:" + strconv.FormatUint(gen, 10) + ":" + k
}

// Generation reads the counter advanced by Flush. An unset counter is
// generation zero.
func (r *Redis) Generation(ctx context.Context) (uint64, error) {
	gen, err := r.client.Get(ctx, r.genKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cache generation: %w", err)
	}
	return gen, nil
}

// Get decodes the snapshot for k into dst. A missing key is a miss, not an
// error.
func (r *Redis) Get(ctx context.Context, gen uint64, k string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, r.key(gen, k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get from cache: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return true, nil
}

// Put stores v under gen. A write made after a flush lands under a
// generation nobody reads and expires with the TTL.
func (r *Redis) Put(ctx context.Context, gen uint64, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(gen, k), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set in cache: %w", err)
	}
	return nil
}

// Flush advances the generation, then deletes the old snapshots.
func (r *Redis) Flush(ctx context.Context) error {
	if err := r.client.Incr(ctx, r.genKey()).Err(); err != nil {
		return fmt.Errorf("advance cache generation: %w", err)
	}
	iter := r.client.Scan(ctx, 0, r.prefix+"snap:*", scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete from cache: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable; used by the health endpoint.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
