// Package memory assembles the episodic self-learning memory engine: a
// durable store and a fast cache tier kept in sync, a pre-storage
// quality gate, reward and reflection computation, pattern/heuristic
// extraction (inline or queued), a hierarchical spatiotemporal
// retriever, a query result cache, an adaptive connection pool, and
// per-agent execution monitoring. SelfLearningMemory is the single
// entry point wiring all of it together behind the episode/pattern API
// described in its method set.
package memory

import (
	"context"
	"fmt"
	"os"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/selfmemory/engine/internal/cachestore"
	"github.com/selfmemory/engine/internal/capacity"
	"github.com/selfmemory/engine/internal/durable"
	"github.com/selfmemory/engine/internal/embedding"
	"github.com/selfmemory/engine/internal/extqueue"
	"github.com/selfmemory/engine/internal/extraction"
	"github.com/selfmemory/engine/internal/memconfig"
	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/memlog"
	"github.com/selfmemory/engine/internal/metrics"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/monitoring"
	"github.com/selfmemory/engine/internal/quality"
	"github.com/selfmemory/engine/internal/querycache"
	"github.com/selfmemory/engine/internal/reflect"
	"github.com/selfmemory/engine/internal/retrieval"
	"github.com/selfmemory/engine/internal/reward"
	"github.com/selfmemory/engine/internal/spatiotemporal"
	memsync "github.com/selfmemory/engine/internal/sync"
	"github.com/selfmemory/engine/internal/storage"
)

// allEpisodesLimit is the page size used wherever the engine needs
// "every" episode from a storage tier (capacity eviction, cycle
// validation, topological order): cachestore/durable's list APIs treat
// limit<=0 as their own default-50 page, so callers that genuinely want
// everything must pass an explicit large limit.
const allEpisodesLimit = 1_000_000

// SelfLearningMemory is the engine instance. All exported methods are
// safe for concurrent use.
type SelfLearningMemory struct {
	cfg    memconfig.Config
	logger *memlog.Logger

	durableStore storage.Backend
	cacheStore   storage.Backend
	syncer       *memsync.Synchronizer

	quality    *quality.Assessor
	rewards    *reward.Calculator
	reflector  *reflect.Generator
	extractCfg extraction.Config
	extQueue   *extqueue.Queue

	index     *spatiotemporal.Index
	retriever *retrieval.Retriever
	capacity  *capacity.Manager
	monitor   *monitoring.Monitor
	queryCache *querycache.Cache
	embeddings *embedding.Orchestrator

	retrievalGroup singleflight.Group

	activeMu stdsync.Mutex
	active   map[uuid.UUID]*model.Episode

	knownToolsMu stdsync.Mutex
	knownTools   map[string]struct{}

	syncHandle *memsync.Handle
}

// New constructs an engine from cfg, opening both storage tiers and
// wiring every subsystem. The cache tier's schema is (re)initialized and
// then brought up to date with the durable tier's recent history.
func New(ctx context.Context, cfg memconfig.Config, logger *memlog.Logger) (*SelfLearningMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = memlog.New("memory", nil)
	}

	durableStore, err := durable.Open(cfg.DurableURL, cfg.Pool, cfg.Durable, logger.With("tier", "durable"))
	if err != nil {
		return nil, err
	}
	if err := durableStore.InitializeSchema(ctx); err != nil {
		durableStore.Close()
		return nil, err
	}

	cachePath, cleanup, err := resolveCachePath(cfg.CachePath)
	if err != nil {
		durableStore.Close()
		return nil, err
	}
	cacheStore, err := cachestore.Open(cachePath)
	if err != nil {
		durableStore.Close()
		cleanup()
		return nil, err
	}
	if err := cacheStore.InitializeSchema(ctx); err != nil {
		durableStore.Close()
		cacheStore.Close()
		cleanup()
		return nil, err
	}

	provider, providerErr := newEmbeddingProvider(cfg.EmbeddingProvider)
	if providerErr != nil {
		logger.Warn("embedding provider unavailable, starting in no-embedding mode", "error", providerErr)
		provider = nil
	}

	m := &SelfLearningMemory{
		cfg:          cfg,
		logger:       logger,
		durableStore: durableStore,
		cacheStore:   cacheStore,
		syncer:       memsync.New(durableStore, cacheStore, logger.With("component", "sync")),
		quality:      quality.New(cfg.Quality),
		rewards:      reward.New(cfg.Reward),
		reflector:    reflect.New(reflect.DefaultConfig()),
		extractCfg:   extraction.DefaultConfig(),
		index:        spatiotemporal.New(),
		monitor:      monitoring.New(metrics.NewCollector(0)),
		queryCache:   querycache.New(cfg.QueryCache),
		embeddings:   embedding.New(provider, logger.With("component", "embedding")),
		capacity:     capacity.New(cfg.MaxEpisodes, cfg.ResolvedEvictionPolicy()),
		active:       make(map[uuid.UUID]*model.Episode),
		knownTools:   make(map[string]struct{}),
	}
	m.extQueue = extqueue.New(cfg.ExtQueue, m.extractEpisode, logger.With("component", "extraction"))
	m.extQueue.Start(ctx)

	m.retriever = retrieval.New(retrieval.DefaultConfig(), m.index, m.lookupEpisode, m.lookupEmbedding)

	if err := m.rebuildIndex(ctx); err != nil {
		m.Close()
		return nil, err
	}

	return m, nil
}

// resolveCachePath translates the ":memory:" cache-path convention into
// a private temp file, since the cache tier's bbolt backend has no true
// in-memory mode. cleanup removes that temp file; it is a no-op for a
// real path.
func resolveCachePath(path string) (resolved string, cleanup func(), err error) {
	if path != ":memory:" {
		return path, func() {}, nil
	}
	f, err := os.CreateTemp("", "selfmemory-cache-*.db")
	if err != nil {
		return "", nil, memerr.Wrap(memerr.KindStorage, err, "create in-memory cache temp file")
	}
	name := f.Name()
	f.Close()
	return name, func() { os.Remove(name) }, nil
}

func newEmbeddingProvider(kind string) (embedding.Provider, error) {
	switch kind {
	case "", "hash":
		return nil, nil // Orchestrator defaults to its hash fallback when primary is nil.
	default:
		return nil, fmt.Errorf("embedding provider %q requires host-supplied credentials, not configured here", kind)
	}
}

// rebuildIndex loads every durable episode into the spatiotemporal
// index, the way a freshly started process recovers its in-memory view
// of episode timing without persisting the index itself.
func (m *SelfLearningMemory) rebuildIndex(ctx context.Context) error {
	episodes, err := m.durableStore.ListEpisodes(ctx, allEpisodesLimit, 0, false)
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		m.index.Insert(ep.ID, ep.StartTime)
	}
	return nil
}

// StartBackgroundSync launches a periodic durable->cache replication
// loop at the given interval, stopped by Close.
func (m *SelfLearningMemory) StartBackgroundSync(ctx context.Context, interval time.Duration) {
	if m.syncHandle != nil {
		m.syncHandle.Stop()
	}
	m.syncHandle = m.syncer.StartPeriodic(ctx, interval)
}

// Close stops background work and releases both storage tiers.
func (m *SelfLearningMemory) Close() error {
	if m.syncHandle != nil {
		m.syncHandle.Stop()
	}
	if m.extQueue != nil {
		m.extQueue.Stop()
	}
	var firstErr error
	if err := m.cacheStore.Close(); err != nil {
		firstErr = err
	}
	if err := m.durableStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// lookupEpisode implements retrieval.EpisodeLookup: cache tier first,
// falling back to durable on miss.
func (m *SelfLearningMemory) lookupEpisode(ctx context.Context, id uuid.UUID) (*model.Episode, bool) {
	if ep, err := m.cacheStore.GetEpisode(ctx, id); err == nil {
		return ep, true
	}
	ep, err := m.durableStore.GetEpisode(ctx, id)
	if err != nil {
		return nil, false
	}
	return ep, true
}

// lookupEmbedding implements retrieval.EmbeddingLookup: cache tier
// first, falling back to durable on miss.
func (m *SelfLearningMemory) lookupEmbedding(ctx context.Context, id uuid.UUID) (model.Embedding, bool) {
	if vec, err := m.cacheStore.GetEmbedding(ctx, "episode", id); err == nil {
		return vec, true
	}
	vec, err := m.durableStore.GetEmbedding(ctx, "episode", id)
	if err != nil {
		return nil, false
	}
	return vec, true
}

// recordKnownTools folds ep's tools into the running set of tools seen
// across all completed episodes, the way the reward calculator's
// novelty bonus is evaluated against history rather than within one
// episode. Returns the set as it stood BEFORE ep's own tools were
// added, which is what Calculate must see to detect a genuinely new
// tool.
func (m *SelfLearningMemory) recordKnownTools(ep *model.Episode) map[string]struct{} {
	m.knownToolsMu.Lock()
	defer m.knownToolsMu.Unlock()

	before := make(map[string]struct{}, len(m.knownTools))
	for t := range m.knownTools {
		before[t] = struct{}{}
	}
	for tool := range ep.ToolSet() {
		m.knownTools[tool] = struct{}{}
	}
	return before
}
