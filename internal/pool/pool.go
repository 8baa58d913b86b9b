// Package pool implements the adaptive connection pool described in
// SPEC_FULL.md §4.11: a semaphore-bounded pool over database/sql
// connections whose target size tracks utilization between configured
// bounds, with optional health checks and keep-alive pings.
package pool

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/memlog"
)

// Config tunes the adaptive pool.
type Config struct {
	Min                int
	Max                int
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	IncrementSize      int
	DecrementSize      int
	CheckInterval      time.Duration
	CooldownWindow     time.Duration
	AcquireTimeout     time.Duration
	HealthCheckOnAcquire bool
	KeepAliveInterval  time.Duration
	StaleThreshold     time.Duration
}

// DefaultConfig returns the defaults named in SPEC_FULL.md §4.11.
func DefaultConfig() Config {
	return Config{
		Min:                  5,
		Max:                  50,
		ScaleUpThreshold:     0.7,
		ScaleDownThreshold:   0.3,
		IncrementSize:        5,
		DecrementSize:        2,
		CheckInterval:        30 * time.Second,
		CooldownWindow:       10 * time.Second,
		AcquireTimeout:       5 * time.Second,
		HealthCheckOnAcquire: true,
		KeepAliveInterval:    2 * time.Minute,
		StaleThreshold:       10 * time.Minute,
	}
}

// Conn is a pooled connection carrying a stable id used to key the
// prepared-statement cache.
type Conn struct {
	ID        uint64
	SQL       *sql.Conn
	CreatedAt time.Time
	LastUsed  time.Time
}

// Stats are the pool's running counters, exposed read-only.
type Stats struct {
	TotalCreated       int64
	TotalCheckouts     int64
	ActiveConnections  int64
	AvgWaitTimeMs      float64
	HealthChecksPassed int64
	HealthChecksFailed int64
}

// Pool is the adaptive connection pool.
type Pool struct {
	mu     sync.Mutex
	db     *sql.DB
	cfg    Config
	logger *memlog.Logger

	target      int // current target pool size, within [Min,Max]
	sem         chan struct{}
	idle        []*Conn
	nextID      atomic.Uint64
	lastScaleAt time.Time

	statsMu sync.RWMutex
	stats   Stats

	totalWaitMs   float64
	totalWaitObs  int64
}

// New creates an adaptive pool backed by db, starting at cfg.Min size.
func New(db *sql.DB, cfg Config, logger *memlog.Logger) *Pool {
	if cfg.Min <= 0 {
		cfg.Min = 1
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	p := &Pool{
		db:     db,
		cfg:    cfg,
		logger: logger,
		target: cfg.Min,
		sem:    make(chan struct{}, cfg.Max),
	}
	for i := 0; i < cfg.Max-p.target; i++ {
		p.sem <- struct{}{} // pre-fill unused capacity as "taken" so only `target` are acquirable
	}
	return p
}

// Acquire checks out a connection, blocking (respecting ctx/AcquireTimeout)
// until one is available or the pool is at Max.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	start := time.Now()

	acquireCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.AcquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	select {
	case p.sem <- struct{}{}:
	case <-acquireCtx.Done():
		return nil, memerr.New(memerr.KindTimeout, "pool: acquire timed out waiting for a connection")
	}

	waitMs := float64(time.Since(start).Microseconds()) / 1000.0
	p.recordWait(waitMs)

	c := p.takeIdleOrCreate(ctx)
	if c == nil {
		<-p.sem
		return nil, memerr.New(memerr.KindStorage, "pool: failed to establish connection")
	}

	if p.cfg.HealthCheckOnAcquire {
		if err := c.SQL.PingContext(ctx); err != nil {
			p.recordHealth(false)
			c.SQL.Close()
			<-p.sem
			return nil, memerr.Wrap(memerr.KindStorage, err, "pool: health check failed on acquire")
		}
		p.recordHealth(true)
	}

	c.LastUsed = time.Now()
	incStats(&p.stats.ActiveConnections, 1, &p.statsMu)
	incStats(&p.stats.TotalCheckouts, 1, &p.statsMu)
	return c, nil
}

// Release returns a connection to the idle pool.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
	incStats(&p.stats.ActiveConnections, -1, &p.statsMu)
	<-p.sem
}

// Close drops all idle connections and the underlying *sql.DB remains
// owned by the caller (the pool does not close it).
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.SQL.Close()
	}
	p.idle = nil
}

func (p *Pool) takeIdleOrCreate(ctx context.Context) *Conn {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c
	}
	p.mu.Unlock()

	sqlConn, err := p.db.Conn(ctx)
	if err != nil {
		return nil
	}
	id := p.nextID.Add(1)
	incStats(&p.stats.TotalCreated, 1, &p.statsMu)
	return &Conn{ID: id, SQL: sqlConn, CreatedAt: time.Now(), LastUsed: time.Now()}
}

func (p *Pool) recordWait(ms float64) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.totalWaitObs++
	p.totalWaitMs += ms
	p.stats.AvgWaitTimeMs = p.totalWaitMs / float64(p.totalWaitObs)
}

func (p *Pool) recordHealth(ok bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if ok {
		p.stats.HealthChecksPassed++
	} else {
		p.stats.HealthChecksFailed++
	}
}

func incStats(field *int64, delta int64, mu *sync.RWMutex) {
	mu.Lock()
	*field += delta
	mu.Unlock()
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.statsMu.RLock()
	defer p.statsMu.RUnlock()
	return p.stats
}

// Utilization returns ActiveConnections / current target size.
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.utilizationLocked()
}

// utilizationLocked requires p.mu to already be held.
func (p *Pool) utilizationLocked() float64 {
	if p.target == 0 {
		return 0
	}
	p.statsMu.RLock()
	active := p.stats.ActiveConnections
	p.statsMu.RUnlock()
	return float64(active) / float64(p.target)
}

// TargetSize returns the pool's current target size.
func (p *Pool) TargetSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// maybeScale adjusts the target size based on utilization, respecting the
// cooldown window and [Min, Max] bounds. It is called periodically by
// StartScaler, and directly by tests.
func (p *Pool) maybeScale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.lastScaleAt) < p.cfg.CooldownWindow {
		return
	}

	util := p.utilizationLocked()
	switch {
	case util >= p.cfg.ScaleUpThreshold && p.target < p.cfg.Max:
		newTarget := p.target + p.cfg.IncrementSize
		if newTarget > p.cfg.Max {
			newTarget = p.cfg.Max
		}
		p.growSemaphore(newTarget - p.target)
		p.target = newTarget
		p.lastScaleAt = time.Now()
		if p.logger != nil {
			p.logger.Info("pool scaled up", "target", p.target, "utilization", util)
		}
	case util <= p.cfg.ScaleDownThreshold && p.target > p.cfg.Min:
		newTarget := p.target - p.cfg.DecrementSize
		if newTarget < p.cfg.Min {
			newTarget = p.cfg.Min
		}
		p.shrinkSemaphore(p.target - newTarget)
		p.target = newTarget
		p.lastScaleAt = time.Now()
		if p.logger != nil {
			p.logger.Info("pool scaled down", "target", p.target, "utilization", util)
		}
	}
}

// growSemaphore releases n previously-reserved "filler" slots so more
// concurrent acquisitions are admitted.
func (p *Pool) growSemaphore(n int) {
	for i := 0; i < n; i++ {
		select {
		case <-p.sem:
		default:
		}
	}
}

// shrinkSemaphore reserves n slots back so fewer concurrent acquisitions
// are admitted (idle connections beyond the new target stay in the idle
// list; only pingIdle closes idle connections, once stale or failing a
// ping. active_connections <= max always holds through the semaphore
// bound).
func (p *Pool) shrinkSemaphore(n int) {
	for i := 0; i < n; i++ {
		select {
		case p.sem <- struct{}{}:
		default:
		}
	}
}

// StartScaler spawns a goroutine that periodically calls maybeScale.
// Cancel the returned function (or its context) to stop it.
func (p *Pool) StartScaler(ctx context.Context) context.CancelFunc {
	loopCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(p.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.maybeScale()
			}
		}
	}()
	return cancel
}

// StartKeepAlive spawns a goroutine that pings idle connections at
// cfg.KeepAliveInterval and drops ones idle beyond cfg.StaleThreshold.
func (p *Pool) StartKeepAlive(ctx context.Context) context.CancelFunc {
	loopCtx, cancel := context.WithCancel(ctx)
	interval := p.cfg.KeepAliveInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				p.pingIdle(loopCtx)
			}
		}
	}()
	return cancel
}

func (p *Pool) pingIdle(ctx context.Context) {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var kept []*Conn
	for _, c := range idle {
		if p.cfg.StaleThreshold > 0 && time.Since(c.LastUsed) > p.cfg.StaleThreshold {
			c.SQL.Close()
			continue
		}
		if err := c.SQL.PingContext(ctx); err != nil {
			c.SQL.Close()
			continue
		}
		kept = append(kept, c)
	}

	p.mu.Lock()
	p.idle = append(p.idle, kept...)
	p.mu.Unlock()
}
