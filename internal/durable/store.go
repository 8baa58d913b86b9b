// Package durable implements the durable storage tier described in
// SPEC_FULL.md §4.2: the full-fidelity relational backend, source of
// truth for episodes, patterns, heuristics, relationships and
// embeddings. It obtains connections from the adaptive pool for every
// call and runs batch writes inside a single transaction.
package durable

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/memlog"
	"github.com/selfmemory/engine/internal/pool"
)

// Config tunes the durable store's compression behavior. Connection
// pooling is configured separately via pool.Config.
type Config struct {
	CompressionAlgo      CompressionAlgo
	CompressionThreshold int
}

// DefaultConfig returns ratio-optimized compression (zstd) at the
// spec's default 1024-byte threshold.
func DefaultConfig() Config {
	return Config{CompressionAlgo: AlgoZstd, CompressionThreshold: DefaultCompressionThreshold}
}

// Store is the durable storage tier, backed by SQLite through an
// adaptive connection pool.
type Store struct {
	db     *sql.DB
	pool   *pool.Pool
	cfg    Config
	logger *memlog.Logger
}

// Open creates (or attaches to) a SQLite database at path (":memory:" is
// valid) and wraps it with an adaptive pool. It does not create the
// schema; call InitializeSchema for that.
func Open(path string, poolCfg pool.Config, cfg Config, logger *memlog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "open sqlite %q", path).WithBackend("durable")
	}
	db.SetMaxOpenConns(poolCfg.Max)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.KindStorage, err, "set WAL mode").WithBackend("durable")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, memerr.Wrap(memerr.KindStorage, err, "enable foreign keys").WithBackend("durable")
	}

	p := pool.New(db, poolCfg, logger)
	return &Store{db: db, pool: p, cfg: cfg, logger: logger}, nil
}

// InitializeSchema creates every table and index if not already present.
func (s *Store) InitializeSchema(ctx context.Context) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, schemaSQL)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "initialize schema").WithBackend("durable")
		}
		return nil
	})
}

// HealthCheck verifies a connection can be acquired and is responsive.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		if err := c.PingContext(ctx); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "health check").WithBackend("durable")
		}
		return nil
	})
}

// Close shuts down the underlying database. The pool's idle connections
// are released first.
func (s *Store) Close() error {
	s.pool.Close()
	if err := s.db.Close(); err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "close database").WithBackend("durable")
	}
	return nil
}

// Pool exposes the underlying adaptive pool, primarily so the host
// process can start its scaler/keep-alive loops.
func (s *Store) Pool() *pool.Pool { return s.pool }

// withConn acquires a pooled connection, runs fn against its raw
// *sql.Conn, and always releases it back to the pool.
func (s *Store) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	c, err := s.pool.Acquire(ctx)
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "acquire connection").WithBackend("durable")
	}
	defer s.pool.Release(c)
	return fn(c.SQL)
}

// withTx acquires a single connection and runs fn inside one
// transaction, used by the atomic batch operations.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		tx, err := c.BeginTx(ctx, nil)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "begin transaction").WithBackend("durable")
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return memerr.Wrap(memerr.KindStorage, fmt.Errorf("%w (rollback: %v)", err, rbErr), "batch write failed").WithBackend("durable")
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "commit transaction").WithBackend("durable")
		}
		return nil
	})
}

// compress/decompress using the store's configured algorithm.
func (s *Store) compress(payload []byte) []byte {
	return Compress(payload, s.cfg.CompressionAlgo, s.cfg.CompressionThreshold)
}
