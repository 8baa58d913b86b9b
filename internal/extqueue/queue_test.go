package extqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memlog"
)

func TestEnqueueAndProcessSucceeds(t *testing.T) {
	var processed int32
	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)

	process := func(ctx context.Context, id uuid.UUID) error {
		atomic.AddInt32(&processed, 1)
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		return nil
	}

	q := New(Config{Capacity: 10, Workers: 2, PollInterval: 5 * time.Millisecond}, process, memlog.New("extqueue-test", nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if !q.Enqueue(id) {
			t.Fatalf("expected enqueue to succeed for %s", id)
		}
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&processed) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for processing, got %d/3", atomic.LoadInt32(&processed))
		case <-time.After(10 * time.Millisecond):
		}
	}

	stats := q.Stats()
	if stats.Processed != 3 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEnqueueBackpressureWhenFull(t *testing.T) {
	block := make(chan struct{})
	process := func(ctx context.Context, id uuid.UUID) error {
		<-block
		return nil
	}

	q := New(Config{Capacity: 1, Workers: 1, PollInterval: 5 * time.Millisecond}, process, memlog.New("extqueue-test", nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer func() {
		close(block)
		q.Stop()
	}()

	// First item is picked up by the single worker and blocks inside
	// process; fill the capacity-1 buffer with a second item.
	first := uuid.New()
	if !q.Enqueue(first) {
		t.Fatal("expected first enqueue to succeed")
	}
	time.Sleep(20 * time.Millisecond) // let the worker dequeue `first` and block

	second := uuid.New()
	if !q.Enqueue(second) {
		t.Fatal("expected second enqueue to fill the buffer")
	}

	third := uuid.New()
	if q.Enqueue(third) {
		t.Fatal("expected third enqueue to report backpressure (queue full)")
	}
}

func TestFailedProcessingCountsFailedStat(t *testing.T) {
	process := func(ctx context.Context, id uuid.UUID) error {
		return errBoom
	}

	q := New(Config{Capacity: 10, Workers: 1, PollInterval: 5 * time.Millisecond}, process, memlog.New("extqueue-test", nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue(uuid.New())

	deadline := time.After(time.Second)
	for q.Stats().Failed == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for failure to be counted")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errBoom = sentinelErr("boom")

func TestStopDrainsWorkers(t *testing.T) {
	process := func(ctx context.Context, id uuid.UUID) error { return nil }
	q := New(DefaultConfig(), process, memlog.New("extqueue-test", nil))
	ctx := context.Background()
	q.Start(ctx)
	q.Enqueue(uuid.New())
	q.Stop() // must return, proving workers exited
}
