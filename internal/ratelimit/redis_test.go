package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client, testLimit, testWindow), mr
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	l, _ := newTestRedisLimiter(t)
	start := time.Unix(1_700_000_000, 0)

	for i := range testLimit {
		assert.True(t, admit(t, l, "caller", start.Add(time.Duration(i)*time.Second)), "request %d", i+1)
	}
	assert.False(t, admit(t, l, "caller", start.Add(10*time.Second)))
	assert.True(t, admit(t, l, "other", start.Add(10*time.Second)))

	assert.True(t, admit(t, l, "caller", start.Add(testWindow+time.Second)))
}

func TestRedisLimiter_RejectionDoesNotMutate(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	now := time.Unix(1_700_000_000, 0)

	for range testLimit + 3 {
		admit(t, l, "caller", now)
	}
	assert.Equal(t, "8", mr.HGet(windowKey("caller"), "count"))
}

func TestRedisLimiter_KeysExpire(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	require.True(t, admit(t, l, "caller", time.Now()))
	require.True(t, mr.Exists(windowKey("caller")))

	mr.FastForward(2*testWindow + time.Second)
	assert.False(t, mr.Exists(windowKey("caller")))
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newTestRedisLimiter(t)
	mr.Close()

	_, err := l.Admit(context.Background(), "caller", time.Now())
	assert.Error(t, err)
}
