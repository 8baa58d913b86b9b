package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/extraction"
	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/quality"
)

// StartEpisode begins a new episode, held in memory until it completes
// or fails the quality gate. Nothing is persisted to either storage
// tier until CompleteEpisode succeeds.
func (m *SelfLearningMemory) StartEpisode(description string, taskCtx model.TaskContext, taskType model.TaskType) (uuid.UUID, error) {
	if err := taskCtx.Validate(); err != nil {
		return uuid.Nil, err
	}
	if !model.ValidTaskType(taskType) {
		return uuid.Nil, memerr.New(memerr.KindValidation, "unknown task type %q", taskType)
	}
	ep := model.NewEpisode(description, taskCtx, taskType)

	m.activeMu.Lock()
	m.active[ep.ID] = ep
	m.activeMu.Unlock()
	return ep.ID, nil
}

// LogStep appends a step to episode_id's in-progress step list, filling
// in the correct dense step number itself. It fails silently (no error
// returned) if the episode is unknown or already completed, matching
// the logging-in-a-hot-loop contract: a caller shouldn't have to check
// a return value on every step.
func (m *SelfLearningMemory) LogStep(episodeID uuid.UUID, step model.ExecutionStep) {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()

	ep, ok := m.active[episodeID]
	if !ok {
		m.logger.Debug("log_step on unknown or already-completed episode", "episode_id", episodeID)
		return
	}
	step.StepNumber = len(ep.Steps) + 1
	if err := ep.AddStep(step); err != nil {
		m.logger.Debug("log_step rejected", "episode_id", episodeID, "error", err)
	}
}

// CompleteEpisode finalizes episode_id with outcome: it runs the
// quality gate, and on a pass computes reward and reflection, persists
// the episode to both storage tiers, indexes it, embeds its
// description, evicts over-capacity working-set entries, extracts
// patterns/heuristics (inline or via the async queue), and invalidates
// the query cache entries scoped to its domain. A gated-out episode
// returns (nil, nil): its id is dropped from the active set with
// nothing persisted.
func (m *SelfLearningMemory) CompleteEpisode(ctx context.Context, episodeID uuid.UUID, outcome model.TaskOutcome) (*model.Episode, error) {
	m.activeMu.Lock()
	ep, ok := m.active[episodeID]
	if ok {
		delete(m.active, episodeID)
	}
	m.activeMu.Unlock()
	if !ok {
		return nil, memerr.NotFound("episode", episodeID.String())
	}

	if err := ep.Complete(outcome); err != nil {
		return nil, err
	}
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	if !m.quality.Passes(ep) {
		m.logger.Info("episode gated out by quality assessor", "episode_id", ep.ID, "score", m.quality.Score(ep))
		return nil, nil
	}

	ep.SalientFeatures = quality.ExtractSalientFeatures(ep, quality.DefaultSalientConfig())

	knownToolsBefore := m.recordKnownTools(ep)
	rewardScore := m.rewards.Calculate(ep, knownToolsBefore)
	ep.Reward = &rewardScore

	reflection := m.reflector.Generate(ep)
	ep.Reflection = &reflection

	if err := m.durableStore.StoreEpisode(ctx, ep); err != nil {
		return nil, err
	}
	if err := m.syncer.SyncEpisodeToCache(ctx, ep.ID); err != nil {
		m.logger.Warn("cache sync failed after durable commit", "episode_id", ep.ID, "error", err)
	}
	m.index.Insert(ep.ID, ep.StartTime)

	if vec, err := m.embeddings.Embed(ctx, ep.Description); err != nil {
		m.logger.Warn("embedding failed, continuing without one", "episode_id", ep.ID, "error", err)
	} else {
		embVec := make(model.Embedding, len(vec))
		for i, f := range vec {
			embVec[i] = f
		}
		if err := m.durableStore.StoreEmbedding(ctx, "episode", ep.ID, embVec); err != nil {
			m.logger.Warn("store embedding in durable tier failed", "episode_id", ep.ID, "error", err)
		}
		if err := m.cacheStore.StoreEmbedding(ctx, "episode", ep.ID, embVec); err != nil {
			m.logger.Warn("store embedding in cache tier failed", "episode_id", ep.ID, "error", err)
		}
	}

	m.evictIfNeeded(ctx)

	if !m.extQueue.Enqueue(ep.ID) {
		m.logger.Warn("extraction queue full, extracting inline", "episode_id", ep.ID)
		if err := m.extractEpisode(ctx, ep.ID); err != nil {
			m.logger.Warn("inline extraction failed", "episode_id", ep.ID, "error", err)
		}
	}

	m.queryCache.InvalidateDomain(ep.Context.Domain)

	return ep, nil
}

// evictIfNeeded drops over-capacity working-set episodes from the cache
// tier only; the durable tier remains their permanent residence.
func (m *SelfLearningMemory) evictIfNeeded(ctx context.Context) {
	current, err := m.cacheStore.ListEpisodes(ctx, allEpisodesLimit, 0, false)
	if err != nil {
		m.logger.Warn("capacity check failed to list working set", "error", err)
		return
	}
	for _, id := range m.capacity.EvictIfNeeded(current) {
		if _, err := m.cacheStore.DeleteEpisode(ctx, id); err != nil {
			m.logger.Warn("capacity eviction failed", "episode_id", id, "error", err)
		}
	}
}

// extractEpisode re-fetches episodeID from durable storage and runs
// pattern/heuristic extraction, merging into whatever already exists by
// structural key. It is both the async queue's ProcessFunc and the
// synchronous fallback CompleteEpisode uses when the queue is full.
func (m *SelfLearningMemory) extractEpisode(ctx context.Context, episodeID uuid.UUID) error {
	ep, err := m.durableStore.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}

	for _, p := range extraction.ExtractPatterns(ep, m.extractCfg) {
		if err := m.mergeAndStorePattern(ctx, p); err != nil {
			m.logger.Warn("store pattern failed", "episode_id", episodeID, "error", err)
		}
	}
	for _, h := range extraction.ExtractHeuristics([]*model.Episode{ep}, m.extractCfg) {
		h.ID = uuid.New()
		if err := m.durableStore.StoreHeuristic(ctx, &h); err != nil {
			m.logger.Warn("store heuristic failed", "episode_id", episodeID, "error", err)
		}
	}
	return nil
}

func (m *SelfLearningMemory) mergeAndStorePattern(ctx context.Context, p model.Pattern) error {
	existing, err := m.durableStore.FindPatternByStructuralKey(ctx, p.Kind, p.StructuralKey())
	if err == nil {
		merged := extraction.Merge(existing, p)
		if verr := merged.Validate(); verr != nil {
			return verr
		}
		return m.durableStore.StorePattern(ctx, merged)
	}
	if !memerr.Is(err, memerr.KindNotFound) {
		return err
	}
	p.ID = uuid.New()
	if verr := p.Validate(); verr != nil {
		return verr
	}
	return m.durableStore.StorePattern(ctx, &p)
}

// GetEpisode looks up an episode by id, checking the cache tier first.
func (m *SelfLearningMemory) GetEpisode(ctx context.Context, id uuid.UUID) (*model.Episode, error) {
	ep, ok := m.lookupEpisode(ctx, id)
	if !ok {
		return nil, memerr.NotFound("episode", id.String())
	}
	return ep, nil
}

// DeleteEpisode removes an episode from both storage tiers and its
// spatiotemporal index entry. It reports whether the episode existed.
func (m *SelfLearningMemory) DeleteEpisode(ctx context.Context, id uuid.UUID) (bool, error) {
	ep, err := m.durableStore.GetEpisode(ctx, id)
	if err == nil {
		m.index.Remove(id, ep.StartTime)
	}
	existed, err := m.durableStore.DeleteEpisode(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := m.cacheStore.DeleteEpisode(ctx, id); err != nil {
		m.logger.Warn("cache-tier delete failed after durable delete", "episode_id", id, "error", err)
	}
	return existed, nil
}

// ListEpisodes returns up to limit completed-or-all episodes from the
// durable tier starting at offset. limit<=0 defaults to 50, matching
// both storage tiers' pagination convention.
func (m *SelfLearningMemory) ListEpisodes(ctx context.Context, limit, offset int, completedOnly bool) ([]*model.Episode, error) {
	return m.durableStore.ListEpisodes(ctx, limit, offset, completedOnly)
}

// Filter narrows list_episodes_filtered, mirroring the filter fields
// named in the external interface: a text search over selected fields
// plus structural predicates on domain, task type, tags, date range,
// outcome and reward.
type Filter struct {
	SearchText   string
	SearchMode   SearchMode
	SearchFields []SearchField

	Domains   []string
	TaskTypes []model.TaskType
	AnyTags   []string
	AllTags   []string

	Since *time.Time
	Until *time.Time

	CompletedOnly bool
	SuccessOnly   bool
	MinReward     *float64
}

// ListEpisodesFiltered applies Filter's structural predicates first,
// then the text search (if any), then paginates the result.
func (m *SelfLearningMemory) ListEpisodesFiltered(ctx context.Context, f Filter, limit, offset int) ([]*model.Episode, error) {
	candidates, err := m.durableStore.ListEpisodes(ctx, allEpisodesLimit, 0, f.CompletedOnly)
	if err != nil {
		return nil, err
	}

	filtered := candidates[:0:0]
	for _, ep := range candidates {
		if !matchesFilter(ep, f) {
			continue
		}
		filtered = append(filtered, ep)
	}

	if f.SearchText != "" {
		filtered, err = searchEpisodes(filtered, f.SearchText, f.SearchMode, f.SearchFields)
		if err != nil {
			return nil, err
		}
	}

	return paginate(filtered, limit, offset), nil
}

func matchesFilter(ep *model.Episode, f Filter) bool {
	if len(f.Domains) > 0 && !containsString(f.Domains, ep.Context.Domain) {
		return false
	}
	if len(f.TaskTypes) > 0 && !containsTaskType(f.TaskTypes, ep.TaskType) {
		return false
	}
	if len(f.AnyTags) > 0 && !anyTagMatches(ep, f.AnyTags) {
		return false
	}
	if len(f.AllTags) > 0 && !allTagsMatch(ep, f.AllTags) {
		return false
	}
	if f.Since != nil && ep.StartTime.Before(*f.Since) {
		return false
	}
	if f.Until != nil && ep.StartTime.After(*f.Until) {
		return false
	}
	if f.SuccessOnly && (ep.Outcome == nil || !ep.Outcome.IsSuccess()) {
		return false
	}
	if f.MinReward != nil && (ep.Reward == nil || ep.Reward.Total < *f.MinReward) {
		return false
	}
	return true
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func containsTaskType(list []model.TaskType, target model.TaskType) bool {
	for _, t := range list {
		if t == target {
			return true
		}
	}
	return false
}

func anyTagMatches(ep *model.Episode, tags []string) bool {
	for _, t := range tags {
		if ep.HasTag(t) {
			return true
		}
	}
	return false
}

func allTagsMatch(ep *model.Episode, tags []string) bool {
	for _, t := range tags {
		if !ep.HasTag(t) {
			return false
		}
	}
	return true
}

func paginate(eps []*model.Episode, limit, offset int) []*model.Episode {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(eps) {
		return nil
	}
	end := offset + limit
	if end > len(eps) {
		end = len(eps)
	}
	return eps[offset:end]
}
