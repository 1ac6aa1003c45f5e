package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores entries in Redis with a fixed TTL. Versions never expire.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. Every key is prefixed with prefix.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

func (r *Redis) versionKey(entity string) string {
	return r.prefix + "version:" + entity
}

func (r *Redis) Version(ctx context.Context, entity string) (int64, error) {
	v, err := r.client.Get(ctx, r.versionKey(entity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Invalidate increments the version of entity. Stale entries are left to
// expire.
func (r *Redis) Invalidate(ctx context.Context, entity string) error {
	return r.client.Incr(ctx, r.versionKey(entity)).Err()
}
