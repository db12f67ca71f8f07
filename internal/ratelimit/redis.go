package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowLua atomically prunes entries outside the window, checks the
// count against the limit, and records the request when admitted. KEYS[1] is
// the window key; ARGV are now (µs), window (µs), and the limit. It returns
// {allowed, count}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return {0, count}
end
redis.call('ZADD', key, now, now)
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, count + 1}
`

// Redis is a sliding-window limiter backed by a Redis sorted set and an
// atomic Lua script, for sharing one exchange quota across processes.
type Redis struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewRedis creates a Redis-backed limiter.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{
		rdb:           rdb,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()

	result, err := r.slidingWindow.Run(
		ctx,
		r.rdb,
		[]string{rateLimitKey(key)},
		now,
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("ratelimit: redis allow %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, nil
}

// Compile-time interface check.
var _ Limiter = (*Redis)(nil)
