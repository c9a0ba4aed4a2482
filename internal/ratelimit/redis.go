package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and arms its expiry in one atomic step. A key that
// somehow lost its TTL gets it back on the next hit instead of counting forever.
var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) == -1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter shares windows across processes.
type RedisCounter struct {
	client redis.Cmdable
}

// NewRedisCounter wraps an existing client.
func NewRedisCounter(client redis.Cmdable) (*RedisCounter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis counter requires a client")
	}
	return &RedisCounter{client: client}, nil
}

// Incr implements Counter. The window is anchored at the hit that created the key.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	count, err := incrWindow.Run(ctx, r.client, []string{key}, ms).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	return count, nil
}
