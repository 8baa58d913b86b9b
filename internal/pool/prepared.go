package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PreparedConfig tunes the per-connection prepared-statement cache
// described in SPEC_FULL.md §4.12.
type PreparedConfig struct {
	PerConnSize      int
	MaxConnections   int
	RefreshUseCount  uint64
	RefreshAge       time.Duration
}

// DefaultPreparedConfig returns the §4.12 defaults.
func DefaultPreparedConfig() PreparedConfig {
	return PreparedConfig{
		PerConnSize:     100,
		MaxConnections:  100,
		RefreshUseCount: 1000,
		RefreshAge:      10 * time.Minute,
	}
}

// StatementEntry is one cached prepared statement, identified by its
// normalized SQL text.
type StatementEntry struct {
	Normalized string
	Stmt       any // opaque: the concrete *sql.Stmt, typed by the caller
	UseCount   uint64
	PreparedAt time.Time
}

// NeedsRefresh reports whether this entry has been used enough times or
// is old enough to warrant recompilation.
func (s *StatementEntry) NeedsRefresh(cfg PreparedConfig) bool {
	if cfg.RefreshUseCount > 0 && s.UseCount >= cfg.RefreshUseCount {
		return true
	}
	if cfg.RefreshAge > 0 && time.Since(s.PreparedAt) >= cfg.RefreshAge {
		return true
	}
	return false
}

// PreparedCache is an LRU over connection ids, each bucket itself an LRU
// over normalized SQL hashes, matching the per-connection cache keyed by
// (connection_id, normalized_sql_hash) from SPEC_FULL.md §4.12.
type PreparedCache struct {
	mu      sync.Mutex
	cfg     PreparedConfig
	buckets *lru.Cache[uint64, *lru.Cache[string, *StatementEntry]]
}

// NewPreparedCache builds a prepared-statement cache with the given
// config.
func NewPreparedCache(cfg PreparedConfig) *PreparedCache {
	if cfg.PerConnSize <= 0 {
		cfg.PerConnSize = 100
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	buckets, _ := lru.New[uint64, *lru.Cache[string, *StatementEntry]](cfg.MaxConnections)
	return &PreparedCache{cfg: cfg, buckets: buckets}
}

// Normalize lowercases and collapses whitespace in SQL text, the
// normalization rule the cache key is derived from.
func Normalize(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	return strings.Join(fields, " ")
}

func hashSQL(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Get looks up a cached statement for (connID, sql), returning (entry, hit).
func (c *PreparedCache) Get(connID uint64, sqlText string) (*StatementEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets.Get(connID)
	if !ok {
		return nil, false
	}
	key := hashSQL(Normalize(sqlText))
	entry, ok := bucket.Get(key)
	if !ok {
		return nil, false
	}
	entry.UseCount++
	return entry, true
}

// Put inserts a freshly-prepared statement into the connection's bucket,
// creating the bucket if this is the first statement seen for connID.
func (c *PreparedCache) Put(connID uint64, sqlText string, stmt any) *StatementEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.buckets.Get(connID)
	if !ok {
		bucket, _ = lru.New[string, *StatementEntry](c.cfg.PerConnSize)
		c.buckets.Add(connID, bucket)
	}

	normalized := Normalize(sqlText)
	entry := &StatementEntry{Normalized: normalized, Stmt: stmt, PreparedAt: time.Now()}
	bucket.Add(hashSQL(normalized), entry)
	return entry
}

// DropConnection evicts a connection's entire statement bucket, called
// when a pooled connection is closed.
func (c *PreparedCache) DropConnection(connID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buckets.Remove(connID)
}

// Len returns the number of tracked connection buckets.
func (c *PreparedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets.Len()
}
