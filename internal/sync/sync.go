// Package sync coordinates durable-to-cache replication, described in
// SPEC_FULL.md §4.4. It is a plain name collision with the standard
// library's sync package only in import path, never imported under that
// name anywhere it would be ambiguous.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/selfmemory/engine/internal/memlog"
	"github.com/selfmemory/engine/internal/storage"
)

// fanOutLimit bounds how many episodes SyncAllRecent stores into the
// cache tier concurrently, so a large backlog doesn't open unbounded
// connections against the cache backend at once.
const fanOutLimit = 8

// Status is a read-only snapshot of the synchronizer's last activity.
type Status struct {
	LastSyncAt   time.Time
	SyncCount    int64
	LastError    string
}

// Synchronizer replicates episodes from a durable backend into a cache
// backend, either on demand or on a periodic background loop.
type Synchronizer struct {
	durable storage.Backend
	cache   storage.Backend
	logger  *memlog.Logger

	mu     stdsync.RWMutex
	status Status
}

// New builds a synchronizer over the two storage tiers.
func New(durable, cache storage.Backend, logger *memlog.Logger) *Synchronizer {
	return &Synchronizer{durable: durable, cache: cache, logger: logger}
}

// SyncEpisodeToCache fetches one episode from the durable tier and
// upserts it into the cache tier. It returns the durable tier's
// NotFound error unchanged if the episode does not exist there.
func (s *Synchronizer) SyncEpisodeToCache(ctx context.Context, id uuid.UUID) error {
	ep, err := s.durable.GetEpisode(ctx, id)
	if err != nil {
		s.recordError(err)
		return err
	}
	if err := s.cache.StoreEpisode(ctx, ep); err != nil {
		s.recordError(err)
		return err
	}
	s.recordSuccess()
	return nil
}

// SyncAllRecent syncs every durable episode updated since the given
// time into the cache. Per-item failures are counted and logged rather
// than aborting the batch; the call returns the number synced and the
// per-item errors encountered.
func (s *Synchronizer) SyncAllRecent(ctx context.Context, since time.Time) (synced int, errs []error) {
	episodes, err := s.durable.QueryEpisodesSince(ctx, since)
	if err != nil {
		s.recordError(err)
		return 0, []error{err}
	}

	var mu stdsync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for _, ep := range episodes {
		ep := ep
		g.Go(func() error {
			if err := s.cache.StoreEpisode(gctx, ep); err != nil {
				s.logger.Warn("sync episode to cache failed", "episode_id", ep.ID, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			synced++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-item errors are collected into errs above, never aborts the batch

	if len(errs) > 0 {
		s.recordError(errs[len(errs)-1])
	} else {
		s.recordSuccess()
	}
	return synced, errs
}

// Handle cancels a periodic sync loop started by StartPeriodic.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop and waits for it to exit.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// StartPeriodic spawns a background loop that calls
// SyncAllRecent(now-1h) every interval until the returned handle is
// stopped or ctx is cancelled.
func (s *Synchronizer) StartPeriodic(ctx context.Context, interval time.Duration) *Handle {
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				synced, errs := s.SyncAllRecent(loopCtx, time.Now().Add(-time.Hour))
				s.logger.Info("periodic sync complete", "synced", synced, "errors", len(errs))
			}
		}
	}()

	return h
}

// Status returns a snapshot of the synchronizer's last activity.
func (s *Synchronizer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Synchronizer) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastSyncAt = time.Now()
	s.status.SyncCount++
}

func (s *Synchronizer) recordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastSyncAt = time.Now()
	s.status.SyncCount++
	s.status.LastError = err.Error()
}
