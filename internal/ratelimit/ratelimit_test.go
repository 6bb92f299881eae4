package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testLimit  = 8
	testWindow = 60 * time.Second
)

func newTestLimiter() *Limiter {
	return NewLimiter(testLimit, testWindow, zap.NewNop().Sugar())
}

func admit(t *testing.T, a Admitter, caller string, now time.Time) bool {
	t.Helper()
	ok, err := a.Admit(context.Background(), caller, now)
	require.NoError(t, err)
	return ok
}

func TestLimiter_AdmitsUpToLimit(t *testing.T) {
	l := newTestLimiter()
	start := time.Unix(1_700_000_000, 0)

	for i := range testLimit {
		assert.True(t, admit(t, l, "caller", start.Add(time.Duration(i)*time.Second)), "request %d", i+1)
	}
	assert.False(t, admit(t, l, "caller", start.Add(9*time.Second)))
	// rejection does not mutate the window
	assert.False(t, admit(t, l, "caller", start.Add(10*time.Second)))
}

func TestLimiter_ResetsAfterWindow(t *testing.T) {
	l := newTestLimiter()
	start := time.Unix(1_700_000_000, 0)

	for range testLimit {
		require.True(t, admit(t, l, "caller", start))
	}
	require.False(t, admit(t, l, "caller", start.Add(testWindow)))

	reset := start.Add(testWindow + time.Millisecond)
	assert.True(t, admit(t, l, "caller", reset))
	for range testLimit - 1 {
		assert.True(t, admit(t, l, "caller", reset))
	}
	assert.False(t, admit(t, l, "caller", reset))
}

func TestLimiter_CallersAreIndependent(t *testing.T) {
	l := newTestLimiter()
	now := time.Now()

	for range testLimit {
		require.True(t, admit(t, l, "a", now))
	}
	assert.False(t, admit(t, l, "a", now))
	assert.True(t, admit(t, l, "b", now))
}

func TestLimiter_ConcurrentSameCaller(t *testing.T) {
	l := newTestLimiter()
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Admit(context.Background(), "caller", now)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(testLimit), admitted.Load())
}

func TestLimiter_Sweep(t *testing.T) {
	l := newTestLimiter()
	start := time.Unix(1_700_000_000, 0)

	require.True(t, admit(t, l, "old", start))
	require.True(t, admit(t, l, "fresh", start.Add(2*testWindow)))
	assert.Equal(t, 2, l.Len())

	assert.Equal(t, 1, l.Sweep(start.Add(2*testWindow+time.Second)))
	assert.Equal(t, 1, l.Len())

	// an evicted caller starts over
	assert.True(t, admit(t, l, "old", start.Add(2*testWindow+2*time.Second)))
}

func TestLimiter_SweeperLifecycle(t *testing.T) {
	l := NewLimiter(testLimit, 10*time.Millisecond, zap.NewNop().Sugar())
	l.StartSweeper()
	require.True(t, admit(t, l, "caller", time.Now().Add(-time.Hour)))

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)
	l.Close()
	l.Close()
}
