package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript applies the fixed window algorithm atomically. Keys expire after
// twice the window so idle callers do not accumulate.
var admitScript = redis.NewScript(`
local vals = redis.call('HMGET', KEYS[1], 'count', 'start')
local count = tonumber(vals[1] or 0)
local start = tonumber(vals[2] or 0)
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
if count == 0 or now - start > window then
	redis.call('HSET', KEYS[1], 'count', 1, 'start', now)
	redis.call('PEXPIRE', KEYS[1], window * 2)
	return 1
end
if count >= limit then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'count', 1)
return 1
`)

// RedisLimiter shares windows between api instances.
type RedisLimiter struct {
	client       *redis.Client
	limit        int
	windowLength time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, windowLength time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, windowLength: windowLength}
}

func windowKey(callerID string) string {
	return fmt.Sprintf("v1:ratelimit:%s", callerID)
}

func (l *RedisLimiter) Admit(ctx context.Context, callerID string, now time.Time) (bool, error) {
	res, err := admitScript.Run(ctx, l.client, []string{windowKey(callerID)},
		now.UnixMilli(), l.windowLength.Milliseconds(), l.limit).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}
