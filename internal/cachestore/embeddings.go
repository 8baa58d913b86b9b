package cachestore

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/storage"
)

func embeddingKey(kind string, id uuid.UUID) []byte {
	return []byte(kind + "\x1f" + id.String())
}

// StoreEmbedding stores a single vector keyed by (kind, id).
func (s *Store) StoreEmbedding(ctx context.Context, kind string, id uuid.UUID, vec model.Embedding) error {
	data, err := encode(vec)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Put(embeddingKey(kind, id), data)
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store embedding %s/%s", kind, id).WithBackend("cache")
	}
	return nil
}

// GetEmbedding fetches one embedding by (kind, id).
func (s *Store) GetEmbedding(ctx context.Context, kind string, id uuid.UUID) (model.Embedding, error) {
	var vec model.Embedding
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketEmbeddings).Get(embeddingKey(kind, id))
		if data == nil {
			return memerr.NotFound("embedding", kind+"/"+id.String())
		}
		return decode(data, &vec)
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// DeleteEmbedding removes one embedding by (kind, id).
func (s *Store) DeleteEmbedding(ctx context.Context, kind string, id uuid.UUID) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEmbeddings).Delete(embeddingKey(kind, id))
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "delete embedding %s/%s", kind, id).WithBackend("cache")
	}
	return nil
}

// StoreEmbeddingBatch stores multiple vectors of the same kind in one
// bbolt transaction.
func (s *Store) StoreEmbeddingBatch(ctx context.Context, kind string, vecs map[uuid.UUID]model.Embedding) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for id, vec := range vecs {
			data, err := encode(vec)
			if err != nil {
				return err
			}
			if err := b.Put(embeddingKey(kind, id), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.KindStorage, err, "store embedding batch %s", kind).WithBackend("cache")
	}
	return nil
}

// GetEmbeddingBatch fetches vectors for a set of ids, omitting any that
// are missing rather than erroring.
func (s *Store) GetEmbeddingBatch(ctx context.Context, kind string, ids []uuid.UUID) (map[uuid.UUID]model.Embedding, error) {
	out := make(map[uuid.UUID]model.Embedding, len(ids))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEmbeddings)
		for _, id := range ids {
			data := b.Get(embeddingKey(kind, id))
			if data == nil {
				continue
			}
			var vec model.Embedding
			if err := decode(data, &vec); err != nil {
				return err
			}
			out[id] = vec
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "get embedding batch %s", kind).WithBackend("cache")
	}
	return out, nil
}

// SimilaritySearch performs the same brute-force cosine scan as the
// durable tier, over whatever embeddings happen to be cached locally.
func (s *Store) SimilaritySearch(ctx context.Context, kind string, query model.Embedding, k int, threshold float32) ([]storage.SimilarityResult, error) {
	prefix := kind + "\x1f"
	var results []storage.SimilarityResult
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEmbeddings).Cursor()
		for key, data := c.Seek([]byte(prefix)); key != nil && strings.HasPrefix(string(key), prefix); key, data = c.Next() {
			idStr := strings.TrimPrefix(string(key), prefix)
			id, err := uuid.Parse(idStr)
			if err != nil {
				continue
			}
			var vec model.Embedding
			if err := decode(data, &vec); err != nil {
				return err
			}
			score := cosineSimilarity(query, vec)
			if score >= threshold {
				results = append(results, storage.SimilarityResult{ID: id, Score: score})
			}
		}
		return nil
	})
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, err, "similarity search %s", kind).WithBackend("cache")
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b model.Embedding) float32 {
	dot := model.Dot(a, b)
	var normA, normB float32
	for _, f := range a {
		normA += f * f
	}
	for _, f := range b {
		normB += f * f
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA*normB)))
}
