package pool

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(50)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPoolAcquireReleaseBoundsActiveConnections(t *testing.T) {
	db := openTestDB(t)
	cfg := DefaultConfig()
	cfg.Min = 2
	cfg.Max = 10
	cfg.ScaleUpThreshold = 0.7
	cfg.IncrementSize = 2
	cfg.HealthCheckOnAcquire = true
	p := New(db, cfg, nil)
	defer p.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c, err := p.Acquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			if err := c.SQL.PingContext(ctx); err != nil {
				errs <- err
			}
			time.Sleep(5 * time.Millisecond)
			p.Release(c)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("acquire/ping failed: %v", err)
	}

	stats := p.Stats()
	if stats.ActiveConnections > int64(cfg.Max) {
		t.Fatalf("active connections %d exceeded max %d", stats.ActiveConnections, cfg.Max)
	}
	if stats.ActiveConnections != 0 {
		t.Fatalf("expected all connections released, got %d active", stats.ActiveConnections)
	}
	if stats.TotalCreated > int64(cfg.Max) {
		t.Fatalf("total created %d exceeded max %d", stats.TotalCreated, cfg.Max)
	}
}

func TestPoolScaleUpAndDown(t *testing.T) {
	db := openTestDB(t)
	cfg := DefaultConfig()
	cfg.Min = 2
	cfg.Max = 10
	cfg.ScaleUpThreshold = 0.5
	cfg.ScaleDownThreshold = 0.1
	cfg.IncrementSize = 2
	cfg.DecrementSize = 1
	cfg.CooldownWindow = 0
	cfg.HealthCheckOnAcquire = false
	p := New(db, cfg, nil)
	defer p.Close()

	if p.TargetSize() != 2 {
		t.Fatalf("expected initial target 2, got %d", p.TargetSize())
	}

	ctx := context.Background()
	c1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// utilization = 1/2 = 0.5 >= threshold -> scale up
	p.maybeScale()
	if p.TargetSize() <= 2 {
		t.Fatalf("expected pool to scale up, target=%d", p.TargetSize())
	}

	p.Release(c1)
	// utilization = 0/target -> scale down by DecrementSize: 4 - 1 = 3
	p.maybeScale()
	if want := cfg.Min + cfg.IncrementSize - cfg.DecrementSize; p.TargetSize() != want {
		t.Fatalf("expected pool to scale down by %d to %d, got %d", cfg.DecrementSize, want, p.TargetSize())
	}
}

func TestPreparedCacheHitAndNormalization(t *testing.T) {
	cache := NewPreparedCache(DefaultPreparedConfig())

	cache.Put(1, "SELECT  *   FROM episodes WHERE id = ?", "stmt-a")

	entry, ok := cache.Get(1, "select * from episodes where id = ?")
	if !ok {
		t.Fatal("expected cache hit for normalized-equivalent SQL")
	}
	if entry.Stmt.(string) != "stmt-a" {
		t.Fatalf("unexpected cached statement: %v", entry.Stmt)
	}
	if entry.UseCount != 1 {
		t.Fatalf("expected use count 1 after one Get, got %d", entry.UseCount)
	}

	if _, ok := cache.Get(2, "select * from episodes where id = ?"); ok {
		t.Fatal("expected miss for a different connection id")
	}
}

func TestPreparedCacheDropConnection(t *testing.T) {
	cache := NewPreparedCache(DefaultPreparedConfig())
	cache.Put(1, "select 1", "s")
	if cache.Len() != 1 {
		t.Fatalf("expected 1 tracked connection, got %d", cache.Len())
	}
	cache.DropConnection(1)
	if cache.Len() != 0 {
		t.Fatalf("expected 0 tracked connections after drop, got %d", cache.Len())
	}
}
