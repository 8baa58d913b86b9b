package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/selfmemory/engine/internal/memlog"
)

// cacheKey is the SHA-256 hex digest of the embedded text, avoiding
// unbounded-length map keys for long descriptions.
func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Orchestrator wraps a Provider with an in-memory cache keyed by text
// hash, so repeated embedding requests for the same description (a
// common case across retries and re-retrieval) skip the provider call.
// It falls back to a HashFallbackProvider if the configured provider
// fails to initialize or errors at call time, putting the engine into
// "no-embedding" mode transparently rather than failing retrieval.
type Orchestrator struct {
	primary  Provider
	fallback Provider
	logger   *memlog.Logger

	mu    sync.RWMutex
	cache map[string]Vector

	usingFallback bool
}

// New builds an Orchestrator. primary may be nil, in which case the
// orchestrator starts directly in fallback mode.
func New(primary Provider, logger *memlog.Logger) *Orchestrator {
	fallback := NewHashFallbackProvider(64)
	o := &Orchestrator{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		cache:    make(map[string]Vector),
	}
	if primary == nil {
		o.usingFallback = true
	}
	return o
}

// Active returns the provider currently serving requests.
func (o *Orchestrator) Active() Provider {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.usingFallback || o.primary == nil {
		return o.fallback
	}
	return o.primary
}

// UsingFallback reports whether the orchestrator has degraded to the
// deterministic local provider.
func (o *Orchestrator) UsingFallback() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.usingFallback
}

// Embed returns the cached vector for text if present, otherwise calls
// the active provider, falling back and caching the demoted state on
// error.
func (o *Orchestrator) Embed(ctx context.Context, text string) (Vector, error) {
	key := cacheKey(text)

	o.mu.RLock()
	if v, ok := o.cache[key]; ok {
		o.mu.RUnlock()
		return v, nil
	}
	o.mu.RUnlock()

	v, err := o.Active().Embed(ctx, text)
	if err != nil && !o.UsingFallback() {
		o.demoteToFallback(err)
		v, err = o.fallback.Embed(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cache[key] = v
	o.mu.Unlock()
	return v, nil
}

// EmbedBatch embeds each text, resolving cache hits first and only
// calling the provider for the remaining misses.
func (o *Orchestrator) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	var missIdx []int
	var missTexts []string

	o.mu.RLock()
	for i, t := range texts {
		if v, ok := o.cache[cacheKey(t)]; ok {
			out[i] = v
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	o.mu.RUnlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := o.Active().EmbedBatch(ctx, missTexts)
	if err != nil && !o.UsingFallback() {
		o.demoteToFallback(err)
		vecs, err = o.fallback.EmbedBatch(ctx, missTexts)
	}
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		o.cache[cacheKey(texts[idx])] = vecs[j]
	}
	o.mu.Unlock()
	return out, nil
}

func (o *Orchestrator) demoteToFallback(cause error) {
	o.mu.Lock()
	alreadyDown := o.usingFallback
	o.usingFallback = true
	o.mu.Unlock()
	if !alreadyDown && o.logger != nil {
		o.logger.Warn("embedding provider failed, falling back to hash-based vectors", "error", cause)
	}
}

// CacheSize returns the number of distinct texts currently cached.
func (o *Orchestrator) CacheSize() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.cache)
}

// ClearCache discards every cached vector.
func (o *Orchestrator) ClearCache() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cache = make(map[string]Vector)
}
