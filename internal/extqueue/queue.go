// Package extqueue implements the bounded async extraction work queue
// described in SPEC_FULL.md §4.8: a bounded channel of pending episode
// ids drained by N worker goroutines, with backpressure falling back to
// synchronous extraction in the caller when the queue is full.
package extqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memlog"
)

// Config tunes the queue's capacity, worker count and poll interval.
type Config struct {
	Capacity     int
	Workers      int
	PollInterval time.Duration
}

// DefaultConfig returns the §4.8 defaults: capacity 100, a modest
// worker pool, and a 50ms poll interval.
func DefaultConfig() Config {
	return Config{Capacity: 100, Workers: 4, PollInterval: 50 * time.Millisecond}
}

// Stats reports the queue's running counters.
type Stats struct {
	Enqueued      uint64
	Processed     uint64
	Failed        uint64
	CurrentSize   int
	ActiveWorkers int
}

// ProcessFunc extracts patterns/heuristics for one episode. Returning an
// error counts the item as failed; extraction for a given episode is
// at-most-once in the async path, so storage-layer merging is relied
// upon to make retried extraction idempotent.
type ProcessFunc func(ctx context.Context, episodeID uuid.UUID) error

// Queue is a bounded multi-producer, multi-consumer work queue of
// pending episode ids.
type Queue struct {
	cfg     Config
	process ProcessFunc
	logger  *memlog.Logger

	items  chan uuid.UUID
	active int32

	enqueued  uint64
	processed uint64
	failed    uint64

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a queue with the given config and per-item processing
// function. It does not start workers; call Start.
func New(cfg Config, process ProcessFunc, logger *memlog.Logger) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Queue{
		cfg:     cfg,
		process: process,
		logger:  logger,
		items:   make(chan uuid.UUID, cfg.Capacity),
	}
}

// Start launches the configured number of worker goroutines. Workers
// exit when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(loopCtx)
	}
}

// Stop cancels all workers and waits for them to drain in-flight work.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case id := <-q.items:
				q.run(ctx, id)
			default:
			}
		case id := <-q.items:
			q.run(ctx, id)
		}
	}
}

func (q *Queue) run(ctx context.Context, id uuid.UUID) {
	atomic.AddInt32(&q.active, 1)
	defer atomic.AddInt32(&q.active, -1)

	if err := q.process(ctx, id); err != nil {
		atomic.AddUint64(&q.failed, 1)
		q.logger.Warn("async extraction failed", "episode_id", id, "error", err)
		return
	}
	atomic.AddUint64(&q.processed, 1)
}

// Enqueue attempts a non-blocking send of id onto the queue. It reports
// true if the item was accepted; false means the queue was full and the
// caller should fall back to synchronous extraction.
func (q *Queue) Enqueue(id uuid.UUID) bool {
	select {
	case q.items <- id:
		atomic.AddUint64(&q.enqueued, 1)
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:      atomic.LoadUint64(&q.enqueued),
		Processed:     atomic.LoadUint64(&q.processed),
		Failed:        atomic.LoadUint64(&q.failed),
		CurrentSize:   len(q.items),
		ActiveWorkers: int(atomic.LoadInt32(&q.active)),
	}
}
