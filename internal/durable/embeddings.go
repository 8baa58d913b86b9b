package durable

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/storage"
)

// StoreEmbedding stores a single vector keyed by (kind, id).
func (s *Store) StoreEmbedding(ctx context.Context, kind string, id uuid.UUID, vec model.Embedding) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		return s.storeEmbeddingLocked(ctx, c, kind, id, vec)
	})
}

func (s *Store) storeEmbeddingLocked(ctx context.Context, c *sql.Conn, kind string, id uuid.UUID, vec model.Embedding) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO embeddings (kind, id, vector_blob) VALUES (?,?,?)
		ON CONFLICT(kind, id) DO UPDATE SET vector_blob = excluded.vector_blob`,
		kind, id.String(), encodeVector(vec))
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store embedding %s/%s", kind, id).WithBackend("durable")
	}
	return nil
}

// GetEmbedding fetches one embedding by (kind, id).
func (s *Store) GetEmbedding(ctx context.Context, kind string, id uuid.UUID) (model.Embedding, error) {
	var vec model.Embedding
	err := s.withConn(ctx, func(c *sql.Conn) error {
		var blob []byte
		err := c.QueryRowContext(ctx, "SELECT vector_blob FROM embeddings WHERE kind = ? AND id = ?", kind, id.String()).Scan(&blob)
		if err == sql.ErrNoRows {
			return memerr.NotFound("embedding", kind+"/"+id.String())
		}
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "get embedding %s/%s", kind, id).WithBackend("durable")
		}
		vec = decodeVector(blob)
		return nil
	})
	return vec, err
}

// DeleteEmbedding removes one embedding by (kind, id).
func (s *Store) DeleteEmbedding(ctx context.Context, kind string, id uuid.UUID) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		_, err := c.ExecContext(ctx, "DELETE FROM embeddings WHERE kind = ? AND id = ?", kind, id.String())
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "delete embedding %s/%s", kind, id).WithBackend("durable")
		}
		return nil
	})
}

// StoreEmbeddingBatch stores multiple vectors of the same kind in one
// connection (not necessarily one transaction, since embeddings are
// independently idempotent upserts).
func (s *Store) StoreEmbeddingBatch(ctx context.Context, kind string, vecs map[uuid.UUID]model.Embedding) error {
	return s.withConn(ctx, func(c *sql.Conn) error {
		for id, vec := range vecs {
			if err := s.storeEmbeddingLocked(ctx, c, kind, id, vec); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEmbeddingBatch fetches vectors for a set of ids, omitting any that
// are missing rather than erroring.
func (s *Store) GetEmbeddingBatch(ctx context.Context, kind string, ids []uuid.UUID) (map[uuid.UUID]model.Embedding, error) {
	result := make(map[uuid.UUID]model.Embedding, len(ids))
	err := s.withConn(ctx, func(c *sql.Conn) error {
		for _, id := range ids {
			var blob []byte
			err := c.QueryRowContext(ctx, "SELECT vector_blob FROM embeddings WHERE kind = ? AND id = ?", kind, id.String()).Scan(&blob)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return memerr.Wrap(memerr.KindStorage, err, "get embedding batch %s/%s", kind, id).WithBackend("durable")
			}
			result[id] = decodeVector(blob)
		}
		return nil
	})
	return result, err
}

// SimilaritySearch computes cosine similarity between query and every
// stored vector of kind, returning the top k results whose score meets
// threshold, descending by score. This is a brute-force scan: the
// durable tier has no vector index, consistent with spec.md's scope
// (no dedicated vector database collaborator).
func (s *Store) SimilaritySearch(ctx context.Context, kind string, query model.Embedding, k int, threshold float32) ([]storage.SimilarityResult, error) {
	var results []storage.SimilarityResult
	err := s.withConn(ctx, func(c *sql.Conn) error {
		rows, err := c.QueryContext(ctx, "SELECT id, vector_blob FROM embeddings WHERE kind = ?", kind)
		if err != nil {
			return memerr.Wrap(memerr.KindStorage, err, "similarity search %s", kind).WithBackend("durable")
		}
		defer rows.Close()
		queryNorm := vectorNorm(query)
		for rows.Next() {
			var idStr string
			var blob []byte
			if err := rows.Scan(&idStr, &blob); err != nil {
				return memerr.Wrap(memerr.KindStorage, err, "scan embedding").WithBackend("durable")
			}
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			vec := decodeVector(blob)
			score := cosineSimilarity(query, vec, queryNorm)
			if score >= threshold {
				results = append(results, storage.SimilarityResult{ID: id, Score: score})
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func encodeVector(vec model.Embedding) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.BigEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeVector(blob []byte) model.Embedding {
	vec := make(model.Embedding, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func vectorNorm(vec model.Embedding) float32 {
	var sumSq float32
	for _, f := range vec {
		sumSq += f * f
	}
	return float32(math.Sqrt(float64(sumSq)))
}

func cosineSimilarity(a, b model.Embedding, normA float32) float32 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	return model.Dot(a, b) / (normA * normB)
}
