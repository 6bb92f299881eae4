// Package ratelimit gates request admission with a fixed window counter per caller
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Admitter decides whether a caller may make another request at now.
type Admitter interface {
	Admit(ctx context.Context, callerID string, now time.Time) (bool, error)
}

type window struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	evicted     bool
}

// Limiter is an in-process fixed window limiter. The map lock is only held to
// find or insert a caller's window; counting happens under the window's own
// lock so callers never contend with each other.
type Limiter struct {
	limit        int
	windowLength time.Duration
	log          *zap.SugaredLogger

	mu      sync.Mutex
	windows map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewLimiter(limit int, windowLength time.Duration, log *zap.SugaredLogger) *Limiter {
	return &Limiter{
		limit:        limit,
		windowLength: windowLength,
		log:          log,
		windows:      map[string]*window{},
	}
}

// StartSweeper evicts idle windows every windowLength until Close is called.
func (l *Limiter) StartSweeper() {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.windowLength)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case now := <-ticker.C:
				if n := l.Sweep(now); n > 0 {
					l.log.Debugw("Swept rate limit windows", "evicted", n)
				}
			}
		}
	}()
}

func (l *Limiter) Close() {
	if l.stop == nil {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
}

func (l *Limiter) Admit(_ context.Context, callerID string, now time.Time) (bool, error) {
	for {
		w := l.getWindow(callerID, now)
		w.mu.Lock()
		if w.evicted {
			// Sweep removed this window between lookup and lock
			w.mu.Unlock()
			continue
		}
		admitted := w.admit(now, l.limit, l.windowLength)
		w.mu.Unlock()
		return admitted, nil
	}
}

// getWindow returns the caller's window, creating an empty one on first use.
func (l *Limiter) getWindow(callerID string, now time.Time) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[callerID]
	if !ok {
		w = &window{windowStart: now}
		l.windows[callerID] = w
	}
	return w
}

func (w *window) admit(now time.Time, limit int, windowLength time.Duration) bool {
	switch {
	case w.count == 0:
		w.count = 1
		w.windowStart = now
		return true
	case now.Sub(w.windowStart) > windowLength:
		w.count = 1
		w.windowStart = now
		return true
	case w.count >= limit:
		return false
	default:
		w.count++
		return true
	}
}

// Sweep evicts windows whose start is older than twice the window length and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time) int {
	cutoff := 2 * l.windowLength
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, w := range l.windows {
		w.mu.Lock()
		if now.Sub(w.windowStart) > cutoff {
			w.evicted = true
			delete(l.windows, id)
			evicted++
		}
		w.mu.Unlock()
	}
	return evicted
}

// Len is the number of tracked callers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
