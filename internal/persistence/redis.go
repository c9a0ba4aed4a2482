package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores values with plain GET/SET on a shared client.
type RedisBackend struct {
	client redis.Cmdable
}

// NewRedisBackend wraps an existing client. The client is owned by the caller.
func NewRedisBackend(client redis.Cmdable) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis backend requires a redis client")
	}
	return &RedisBackend{client: client}, nil
}

func newRedisBackendFromOptions(options map[string]any, deps Deps) (Backend, error) {
	var opts struct{}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewRedisBackend(deps.Redis)
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Load(ctx context.Context, key string) (int, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return 0, fmt.Errorf("redis backend: get %q: %w", key, err)
	}
	return parseHP(raw)
}

func (r *RedisBackend) Save(ctx context.Context, key string, hp int) error {
	if err := r.client.Set(ctx, key, formatHP(hp), 0).Err(); err != nil {
		return fmt.Errorf("redis backend: set %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; the shared client is closed by its owner.
func (r *RedisBackend) Close() error { return nil }
