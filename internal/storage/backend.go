// Package storage defines the uniform StorageBackend interface consumed
// by the memory engine and shared by the two concrete tiers: the durable
// store (internal/durable) and the cache store (internal/cachestore).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/selfmemory/engine/internal/model"
)

// EpisodeFilter narrows a metadata query to episodes whose metadata map
// contains the given key/value pair.
type EpisodeFilter struct {
	MetadataKey   string
	MetadataValue string
}

// Backend is the uniform CRUD + batch + embedding interface implemented
// by both storage tiers. Both tiers share this contract even though the
// cache tier has reduced query capability (no metadata search — see
// internal/cachestore).
type Backend interface {
	// Episode operations.
	StoreEpisode(ctx context.Context, ep *model.Episode) error
	GetEpisode(ctx context.Context, id uuid.UUID) (*model.Episode, error)
	DeleteEpisode(ctx context.Context, id uuid.UUID) (bool, error)
	ListEpisodes(ctx context.Context, limit, offset int, completedOnly bool) ([]*model.Episode, error)
	QueryEpisodesSince(ctx context.Context, since time.Time) ([]*model.Episode, error)
	QueryEpisodesByMetadata(ctx context.Context, filter EpisodeFilter) ([]*model.Episode, error)

	// Tag operations.
	SetEpisodeTags(ctx context.Context, id uuid.UUID, tags []string) error
	GetEpisodeTags(ctx context.Context, id uuid.UUID) ([]string, error)

	// Pattern operations.
	StorePattern(ctx context.Context, p *model.Pattern) error
	GetPattern(ctx context.Context, id uuid.UUID) (*model.Pattern, error)
	ListPatterns(ctx context.Context, limit int) ([]*model.Pattern, error)
	FindPatternByStructuralKey(ctx context.Context, kind model.PatternKind, key string) (*model.Pattern, error)

	// Heuristic operations.
	StoreHeuristic(ctx context.Context, h *model.Heuristic) error
	GetHeuristic(ctx context.Context, id uuid.UUID) (*model.Heuristic, error)
	ListHeuristics(ctx context.Context, limit int) ([]*model.Heuristic, error)

	// Relationship operations.
	AddRelationship(ctx context.Context, r *model.EpisodeRelationship) error
	RemoveRelationship(ctx context.Context, id uuid.UUID) (bool, error)
	OutgoingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error)
	IncomingRelationships(ctx context.Context, episodeID uuid.UUID) ([]*model.EpisodeRelationship, error)
	CheckRelationship(ctx context.Context, from, to uuid.UUID, t model.RelationType) (bool, error)

	// Embedding operations.
	StoreEmbedding(ctx context.Context, kind string, id uuid.UUID, vec model.Embedding) error
	GetEmbedding(ctx context.Context, kind string, id uuid.UUID) (model.Embedding, error)
	DeleteEmbedding(ctx context.Context, kind string, id uuid.UUID) error
	StoreEmbeddingBatch(ctx context.Context, kind string, vecs map[uuid.UUID]model.Embedding) error
	GetEmbeddingBatch(ctx context.Context, kind string, ids []uuid.UUID) (map[uuid.UUID]model.Embedding, error)
	SimilaritySearch(ctx context.Context, kind string, query model.Embedding, k int, threshold float32) ([]SimilarityResult, error)

	// Batch operations, atomic per batch.
	StoreEpisodesBatch(ctx context.Context, eps []*model.Episode) error
	StorePatternsBatch(ctx context.Context, pats []*model.Pattern) error

	// Lifecycle.
	InitializeSchema(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// SimilarityResult is one hit from a similarity search, with the cosine
// similarity score against the query vector.
type SimilarityResult struct {
	ID    uuid.UUID
	Score float32
}
