// Package cachestore implements the fast local cache tier described in
// SPEC_FULL.md §4.3: an embedded single-file B+-tree store (bbolt) with
// one bucket per entity kind, compact binary (encoding/gob) values
// instead of JSON. The cache is authoritative for nothing; the
// synchronizer (internal/sync) rebuilds it from the durable store.
package cachestore

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/storage"
)

var (
	bucketEpisodes      = []byte("episodes")
	bucketPatterns      = []byte("patterns")
	bucketHeuristics    = []byte("heuristics")
	bucketRelationships = []byte("relationships")
	bucketEmbeddings    = []byte("embeddings")
)

var allBuckets = [][]byte{
	bucketEpisodes, bucketPatterns, bucketHeuristics,
	bucketRelationships, bucketEmbeddings,
}

// Store is the embedded cache tier, backed by a single bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "open cache store %q", path).WithBackend("cache")
	}
	return &Store{db: db}, nil
}

// InitializeSchema creates every bucket if not already present.
func (s *Store) InitializeSchema(ctx context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "initialize cache schema").WithBackend("cache")
	}
	return nil
}

// HealthCheck verifies the database file is still accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	err := s.db.View(func(tx *bolt.Tx) error { return nil })
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "cache health check").WithBackend("cache")
	}
	return nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "close cache store").WithBackend("cache")
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, memerr.Wrap(memerr.KindSerialization, err, "gob encode").WithBackend("cache")
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return memerr.Wrap(memerr.KindSerialization, err, "gob decode").WithBackend("cache")
	}
	return nil
}

// scanBucketLimit reads up to limit keys from a bucket, skipping offset,
// in key (lexical id) order. No method of Store calls it; ListEpisodes,
// ListPatterns and ListHeuristics decode and page in memory instead.
func scanBucketLimit(tx *bolt.Tx, bucket []byte, limit, offset int) [][]byte {
	var values [][]byte
	c := tx.Bucket(bucket).Cursor()
	i := 0
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if i < offset {
			i++
			continue
		}
		if limit > 0 && len(values) >= limit {
			break
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		values = append(values, cp)
		i++
	}
	return values
}

var _ storage.Backend = (*Store)(nil)

func idKey(id uuid.UUID) []byte { return []byte(id.String()) }
