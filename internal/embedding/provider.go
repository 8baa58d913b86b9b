// Package embedding orchestrates text-to-vector embedding generation:
// a narrow provider interface, an in-memory cache of computed vectors,
// a batch API, and a deterministic local fallback so retrieval's
// similarity level keeps working without a live third-party provider.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/selfmemory/engine/internal/memerr"
)

// Provider computes embeddings for text. Remote providers (OpenAI,
// local model servers, etc.) are an out-of-scope collaborator; this
// interface is the seam a host process plugs one into.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) (Vector, error)
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Vector is a fixed-dimension embedding, independent of the storage
// layer's own model.Embedding type so this package has no storage
// dependency; callers convert at the boundary.
type Vector []float32

// HashFallbackProvider is a deterministic, dependency-free provider
// used when no remote embedding provider is configured or available.
// It derives a unit vector from repeated SHA-256 hashing of the input
// text, giving stable, comparable (if low-quality) vectors so
// retrieval's cosine-similarity level keeps functioning in
// "no-embedding" mode rather than being disabled outright.
type HashFallbackProvider struct {
	dim int
}

// NewHashFallbackProvider builds a fallback provider producing vectors
// of the given dimension (minimum 8).
func NewHashFallbackProvider(dim int) *HashFallbackProvider {
	if dim < 8 {
		dim = 8
	}
	return &HashFallbackProvider{dim: dim}
}

func (p *HashFallbackProvider) Name() string   { return "hash-fallback" }
func (p *HashFallbackProvider) Dimension() int { return p.dim }

// Embed derives a deterministic unit vector from text: each dimension
// is seeded by hashing text with the dimension index, so the same text
// always yields the same vector. Different texts yield unrelated
// vectors: shared words or substrings do not raise their cosine
// similarity.
func (p *HashFallbackProvider) Embed(ctx context.Context, text string) (Vector, error) {
	vec := make(Vector, p.dim)
	var norm float64
	for i := 0; i < p.dim; i++ {
		h := sha256.Sum256(append([]byte(text), byte(i), byte(i>>8)))
		// Map the first 4 bytes of the hash to a signed float in [-1, 1].
		u := binary.BigEndian.Uint32(h[:4])
		v := float32(int32(u)) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// EmbedBatch embeds each text independently; the fallback has no
// batching efficiency to gain, unlike a remote provider amortizing a
// network round trip.
func (p *HashFallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, memerr.Wrap(memerr.KindStorage, err, "embed batch item %d", i)
		}
		out[i] = v
	}
	return out, nil
}
