// Package usage buckets per caller usage in memory and flushes it to the database
package usage

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"owly-api/internal/database"
	"owly-api/internal/metrics"
	"owly-api/internal/shared"

	"go.uber.org/zap"
)

type counters struct {
	requests         uint64
	promptTokens     uint64
	completionTokens uint64
}

type bucket struct {
	mu       sync.Mutex
	callerID string
	date     string
	intents  map[string]*counters
}

func (b *bucket) add(intent string, usage shared.Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.intents[intent]
	if !ok {
		c = &counters{}
		b.intents[intent] = c
	}
	c.requests++
	c.promptTokens += usage.PromptTokens
	c.completionTokens += usage.CompletionTokens
}

func (b *bucket) rows() []database.UsageRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]database.UsageRow, 0, len(b.intents))
	for intent, c := range b.intents {
		rows = append(rows, database.UsageRow{
			Date:             b.date,
			CallerID:         b.callerID,
			Intent:           intent,
			RequestCount:     c.requests,
			PromptTokens:     c.promptTokens,
			CompletionTokens: c.completionTokens,
		})
	}
	return rows
}

type bucketKey struct {
	callerID string
	date     string
}

type Recorder struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
	log     *zap.SugaredLogger
	db      *sql.DB
	now     func() time.Time

	retryDelay time.Duration
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once
}

func NewRecorder(log *zap.SugaredLogger, db *sql.DB) *Recorder {
	return &Recorder{
		db:         db,
		log:        log,
		buckets:    map[bucketKey]*bucket{},
		now:        time.Now,
		retryDelay: shared.BucketRetryDelay,
	}
}

// Record adds one request to the caller's bucket for today.
func (r *Recorder) Record(callerID, intent string, usage shared.Usage) {
	key := bucketKey{callerID: callerID, date: database.Today(r.now())}

	// The read lock is held across add so a flush cannot swap the map out
	// between lookup and increment
	r.mu.RLock()
	if b, ok := r.buckets[key]; ok {
		b.add(intent, usage)
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{callerID: callerID, date: key.date, intents: map[string]*counters{}}
		r.buckets[key] = b
	}
	b.add(intent, usage)
	r.mu.Unlock()
}

// Start flushes every interval until Shutdown is called.
func (r *Recorder) Start(interval time.Duration) {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.Flush(context.Background())
			}
		}
	}()
}

// Shutdown stops the flush loop and writes whatever is left.
func (r *Recorder) Shutdown() {
	r.log.Info("Shutting down usage recorder")
	if r.stop != nil {
		r.stopOnce.Do(func() {
			close(r.stop)
			<-r.done
		})
	}
	r.Flush(context.Background())
}

// Flush swaps out the current buckets and writes them in one transaction.
// Failed flushes are retried MaxFlushRetries times and then dropped.
func (r *Recorder) Flush(ctx context.Context) {
	r.mu.Lock()
	if len(r.buckets) == 0 {
		r.mu.Unlock()
		return
	}
	flushing := r.buckets
	r.buckets = map[bucketKey]*bucket{}
	r.mu.Unlock()

	var rows []database.UsageRow
	for _, b := range flushing {
		rows = append(rows, b.rows()...)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CallerID != rows[j].CallerID {
			return rows[i].CallerID < rows[j].CallerID
		}
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Intent < rows[j].Intent
	})

	var err error
	for attempt := range shared.MaxFlushRetries {
		if attempt > 0 {
			time.Sleep(r.retryDelay)
		}
		err = database.ExecuteTransaction(ctx, r.db, []func(*sql.Tx) error{
			func(tx *sql.Tx) error {
				return database.SaveUsage(ctx, tx, rows)
			},
		})
		if err == nil {
			r.log.Infow("Flushed usage", "callers", len(flushing), "rows", len(rows))
			return
		}
		r.log.Errorw("Failed to execute transaction", "error", err, "attempt", attempt+1)
	}
	r.log.Errorw("Dropping usage after retries", "error", err, "rows", len(rows))
	metrics.ErrorCount.WithLabelValues("save_usage", "usage").Inc()
}
