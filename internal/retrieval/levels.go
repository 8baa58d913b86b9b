package retrieval

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/spatiotemporal"
)

// Query describes a retrieval request.
type Query struct {
	Domain      string
	TaskType    model.TaskType
	Description string
	Embedding   model.Embedding
	Limit       int
}

// Weights configures the contribution of each pipeline level to the
// combined relevance score.
type Weights struct {
	Domain     float64
	TaskType   float64
	Temporal   float64
	Similarity float64
}

// DefaultWeights matches the documented defaults: L1 .25, L2 .20,
// L3 .20, L4 .35.
func DefaultWeights() Weights {
	return Weights{Domain: 0.25, TaskType: 0.20, Temporal: 0.20, Similarity: 0.35}
}

// Config tunes the retriever's temporal clustering level.
type Config struct {
	MaxClustersToSearch int
	TemporalBiasWeight  float64
	Weights             Weights
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxClustersToSearch: 5,
		TemporalBiasWeight:  0.3,
		Weights:             DefaultWeights(),
	}
}

// EpisodeLookup resolves an episode id to its episode, the way the
// retriever reaches into storage without depending on it directly.
type EpisodeLookup func(ctx context.Context, id uuid.UUID) (*model.Episode, bool)

// EmbeddingLookup resolves an episode id to its stored embedding, if
// any.
type EmbeddingLookup func(ctx context.Context, id uuid.UUID) (model.Embedding, bool)

// Result is one scored retrieval hit.
type Result struct {
	EpisodeID  uuid.UUID
	Episode    *model.Episode
	Relevance  float64
	DomainHit  float64
	TaskHit    float64
	TemporalHit float64
	SimilarityHit float64
}

// Retriever implements the four-level coarse-to-fine retrieval
// pipeline over the spatiotemporal index.
type Retriever struct {
	cfg        Config
	index      *spatiotemporal.Index
	episodes   EpisodeLookup
	embeddings EmbeddingLookup
}

// New builds a Retriever over idx, resolving candidate episodes and
// their embeddings through the given lookups.
func New(cfg Config, idx *spatiotemporal.Index, episodes EpisodeLookup, embeddings EmbeddingLookup) *Retriever {
	return &Retriever{cfg: cfg, index: idx, episodes: episodes, embeddings: embeddings}
}

// Retrieve runs the L1-L4 pipeline and returns results sorted by
// combined relevance descending, truncated to q.Limit (0 means
// unlimited).
func (r *Retriever) Retrieve(ctx context.Context, q Query) []Result {
	buckets := r.index.RecentDayBuckets(r.cfg.MaxClustersToSearch)
	if len(buckets) == 0 {
		return nil
	}

	var results []Result
	for age, bucket := range buckets {
		ids := r.index.QueryBucket(bucket)
		for _, id := range ids {
			ep, ok := r.episodes(ctx, id)
			if !ok {
				continue
			}

			domainScore, ok := matchDomain(q, ep)
			if !ok {
				continue
			}
			taskScore, ok := matchTaskType(q, ep)
			if !ok {
				continue
			}
			temporalScore := r.temporalScore(age)
			similarityScore := r.similarityScore(ctx, q, ep)

			relevance := domainScore*r.cfg.Weights.Domain +
				taskScore*r.cfg.Weights.TaskType +
				temporalScore*r.cfg.Weights.Temporal +
				similarityScore*r.cfg.Weights.Similarity

			results = append(results, Result{
				EpisodeID:     id,
				Episode:       ep,
				Relevance:     relevance,
				DomainHit:     domainScore,
				TaskHit:       taskScore,
				TemporalHit:   temporalScore,
				SimilarityHit: similarityScore,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

// matchDomain implements L1: pass-through (score 1.0) if the query has
// no domain filter, otherwise an exact-match gate.
func matchDomain(q Query, ep *model.Episode) (score float64, keep bool) {
	if q.Domain == "" {
		return 1.0, true
	}
	if ep.Context.Domain == q.Domain {
		return 1.0, true
	}
	return 0, false
}

// matchTaskType implements L2, analogous to L1.
func matchTaskType(q Query, ep *model.Episode) (score float64, keep bool) {
	if q.TaskType == "" {
		return 1.0, true
	}
	if ep.TaskType == q.TaskType {
		return 1.0, true
	}
	return 0, false
}

// temporalScore implements L3: more recent day-bucket positions (lower
// age) score higher, within the configured bias weight.
func (r *Retriever) temporalScore(ageInClusters int) float64 {
	maxClusters := r.cfg.MaxClustersToSearch
	if maxClusters <= 0 {
		maxClusters = 1
	}
	bias := r.cfg.TemporalBiasWeight
	return (1-float64(ageInClusters)/float64(maxClusters))*bias + (1 - bias)
}

// similarityScore implements L4: cosine similarity of embeddings when
// both are present, falling back to word-overlap over descriptions.
func (r *Retriever) similarityScore(ctx context.Context, q Query, ep *model.Episode) float64 {
	if len(q.Embedding) > 0 && r.embeddings != nil {
		if epEmb, ok := r.embeddings(ctx, ep.ID); ok && len(epEmb) > 0 {
			return CosineSimilarity(q.Embedding, epEmb)
		}
	}
	return WordOverlapSimilarity(q.Description, ep.Description)
}
