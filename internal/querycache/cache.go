// Package querycache implements the LRU+TTL query result cache described
// in SPEC_FULL.md §4.13: keyed by query type and SQL/param hashes, with
// table-dependency and domain-scoped invalidation and hot-query tracking.
package querycache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType determines a cache entry's default TTL when none is given
// explicitly.
type QueryType string

const (
	QueryEpisode    QueryType = "episode"
	QueryPattern    QueryType = "pattern"
	QueryStatistics QueryType = "statistics"
	QueryEmbedding  QueryType = "embedding"
)

// DefaultTTL returns the §4.13 default TTL for a query type, falling back
// to the Episode default for unrecognized types.
func DefaultTTL(t QueryType) time.Duration {
	switch t {
	case QueryStatistics:
		return 60 * time.Second
	case QueryEmbedding:
		return 1800 * time.Second
	case QueryPattern, QueryEpisode:
		return 300 * time.Second
	default:
		return 300 * time.Second
	}
}

// Table names an entity table a cached query result depends on, used for
// invalidate_by_table.
type Table string

const (
	TableEpisodes      Table = "episodes"
	TablePatterns      Table = "patterns"
	TableSteps         Table = "steps"
	TableHeuristics    Table = "heuristics"
	TableRelationships Table = "relationships"
	TableEmbeddings    Table = "embeddings"
)

// Key identifies one cached query by type, SQL hash and parameter hashes.
type Key struct {
	QueryType   QueryType
	SQLHash     string
	ParamHashes string
}

// NewKey builds a Key from raw SQL text and parameter values, hashing
// both so the cache never retains the literal SQL or parameter bytes.
func NewKey(qt QueryType, sqlText string, params ...string) Key {
	return Key{
		QueryType:   qt,
		SQLHash:     hashString(normalizeSQL(sqlText)),
		ParamHashes: hashString(strings.Join(params, "\x1f")),
	}
}

func normalizeSQL(sqlText string) string {
	return strings.Join(strings.Fields(strings.ToLower(sqlText)), " ")
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Config tunes the cache's size and hot-query threshold.
type Config struct {
	MaxEntries   int
	HotHitCount  uint64
	NearExpiry   time.Duration
}

// DefaultConfig returns reasonable defaults: 10k entries, hot after 5
// hits, near-expiry window of 10s.
func DefaultConfig() Config {
	return Config{MaxEntries: 10000, HotHitCount: 5, NearExpiry: 10 * time.Second}
}

type entry struct {
	key        Key
	value      any
	domains    []string
	tables     []Table
	expiresAt  time.Time
	hitCount   uint64
	storedAt   time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

func (e *entry) hot(cfg Config) bool {
	return e.hitCount >= cfg.HotHitCount
}

func (e *entry) nearExpiry(now time.Time, cfg Config) bool {
	return !e.expired(now) && e.expiresAt.Sub(now) <= cfg.NearExpiry
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
	CurrentSize int
}

// HitRate returns Hits / (Hits+Misses), or 0 with no lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a process-wide LRU+TTL query result cache protected by a
// single read/write lock, matching the fine-grained-lock policy of
// SPEC_FULL.md §5.
type Cache struct {
	mu    sync.RWMutex
	cfg   Config
	lru   *lru.Cache[Key, *entry]
	stats Stats
}

// New builds a query cache with the given config.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.HotHitCount <= 0 {
		cfg.HotHitCount = 5
	}
	c := &Cache{cfg: cfg}
	c.lru, _ = lru.NewWithEvict[Key, *entry](cfg.MaxEntries, func(Key, *entry) {
		c.stats.Evictions++
	})
	return c
}

// Put inserts a value under key with an explicit TTL (or the query
// type's default when ttl <= 0), recording its table dependencies and
// the domain values the caller passes, for later invalidation.
func (c *Cache) Put(key Key, value any, ttl time.Duration, tables []Table, domains []string) {
	if ttl <= 0 {
		ttl = DefaultTTL(key.QueryType)
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{
		key:       key,
		value:     value,
		domains:   domains,
		tables:    tables,
		expiresAt: now.Add(ttl),
		storedAt:  now,
	})
}

// Get looks up key, returning (value, true) on a live hit. An expired
// entry is removed and counted as a miss.
func (c *Cache) Get(key Key) (any, bool) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if e.expired(now) {
		c.lru.Remove(key)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}
	e.hitCount++
	c.stats.Hits++
	return e.value, true
}

// InvalidateByTable drops every entry that declared a dependency on t.
func (c *Cache) InvalidateByTable(t Table) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWhereLocked(func(e *entry) bool {
		for _, dep := range e.tables {
			if dep == t {
				return true
			}
		}
		return false
	})
}

// InvalidateDomain drops every entry whose recorded domain set includes
// d. This is the high-throughput invalidation path: a write affecting
// only one domain should call this instead of InvalidateByTable so it
// does not evict unrelated hot entries.
func (c *Cache) InvalidateDomain(d string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWhereLocked(func(e *entry) bool {
		for _, dom := range e.domains {
			if dom == d {
				return true
			}
		}
		return false
	})
}

// InvalidateAll drops every entry in the cache.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	return n
}

// removeWhereLocked must be called with c.mu held.
func (c *Cache) removeWhereLocked(match func(*entry) bool) int {
	var toRemove []Key
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if ok && match(e) {
			toRemove = append(toRemove, k)
		}
	}
	evictionsBefore := c.stats.Evictions
	for _, k := range toRemove {
		c.lru.Remove(k)
	}
	// Remove fires the eviction callback too; explicit removal is not an
	// eviction in the LRU-capacity sense, so the counter is restored.
	c.stats.Evictions = evictionsBefore
	return len(toRemove)
}

// HotNearExpiry returns the keys of entries that are both hot (hit count
// at or above the configured threshold) and within the near-expiry window, so
// the engine can pre-refresh them before they lapse.
func (c *Cache) HotNearExpiry() []Key {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Key
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if e.hot(c.cfg) && e.nearExpiry(now, c.cfg) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SQLHash < out[j].SQLHash })
	return out
}

// Stats returns a snapshot of the cache's effectiveness counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.CurrentSize = c.lru.Len()
	return s
}
