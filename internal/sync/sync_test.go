package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/cachestore"
	"github.com/selfmemory/engine/internal/durable"
	"github.com/selfmemory/engine/internal/memlog"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/pool"
)

func newTestTiers(t *testing.T) (*durable.Store, *cachestore.Store) {
	t.Helper()
	logger := memlog.New("sync-test", nil)

	poolCfg := pool.DefaultConfig()
	poolCfg.Min, poolCfg.Max = 1, 5
	d, err := durable.Open(":memory:", poolCfg, durable.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("open durable: %v", err)
	}
	if err := d.InitializeSchema(context.Background()); err != nil {
		t.Fatalf("init durable schema: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	c, err := cachestore.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	if err := c.InitializeSchema(context.Background()); err != nil {
		t.Fatalf("init cache schema: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return d, c
}

func TestSyncEpisodeToCache(t *testing.T) {
	d, c := newTestTiers(t)
	ctx := context.Background()
	syncer := New(d, c, memlog.New("sync-test", nil))

	ep := model.NewEpisode("sync target", model.DefaultTaskContext(), model.TaskTesting)
	if err := d.StoreEpisode(ctx, ep); err != nil {
		t.Fatalf("store durable: %v", err)
	}

	if err := syncer.SyncEpisodeToCache(ctx, ep.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got, err := c.GetEpisode(ctx, ep.ID)
	if err != nil {
		t.Fatalf("get from cache: %v", err)
	}
	if got.Description != ep.Description {
		t.Fatalf("expected synced episode, got %+v", got)
	}

	status := syncer.Status()
	if status.SyncCount != 1 || status.LastError != "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestSyncEpisodeToCacheMissingIsNotFound(t *testing.T) {
	d, c := newTestTiers(t)
	syncer := New(d, c, memlog.New("sync-test", nil))

	err := syncer.SyncEpisodeToCache(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if syncer.Status().LastError == "" {
		t.Fatal("expected last error recorded")
	}
}

func TestSyncAllRecentCountsPerItemFailures(t *testing.T) {
	d, c := newTestTiers(t)
	ctx := context.Background()
	syncer := New(d, c, memlog.New("sync-test", nil))

	since := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		ep := model.NewEpisode("batch sync", model.DefaultTaskContext(), model.TaskTesting)
		if err := d.StoreEpisode(ctx, ep); err != nil {
			t.Fatalf("store %d: %v", i, err)
		}
	}

	synced, errs := syncer.SyncAllRecent(ctx, since)
	if synced != 3 || len(errs) != 0 {
		t.Fatalf("expected 3 synced 0 errors, got synced=%d errs=%v", synced, errs)
	}
}

func TestStartPeriodicRunsAndStops(t *testing.T) {
	d, c := newTestTiers(t)
	ctx := context.Background()
	syncer := New(d, c, memlog.New("sync-test", nil))

	ep := model.NewEpisode("periodic target", model.DefaultTaskContext(), model.TaskTesting)
	if err := d.StoreEpisode(ctx, ep); err != nil {
		t.Fatalf("store: %v", err)
	}

	h := syncer.StartPeriodic(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	h.Stop()

	if syncer.Status().SyncCount == 0 {
		t.Fatal("expected at least one periodic sync to have run")
	}
}
