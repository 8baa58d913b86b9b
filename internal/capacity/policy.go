// Package capacity implements the optional working-set governor: when
// the in-memory episode set grows past a configured ceiling, a policy
// decides which episodes to drop to durable-only residence.
package capacity

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
)

// EvictionPolicy decides which episodes to evict from a capacity-
// constrained working set, given the current set and how many must be
// dropped. Implementations return exactly count ids (or fewer, if the
// set is smaller than count).
type EvictionPolicy interface {
	Name() string
	Select(episodes []*model.Episode, count int) []uuid.UUID
}

// LRU evicts the episodes with the oldest end_time, falling back to
// start_time for episodes still in progress.
type LRU struct{}

func (LRU) Name() string { return "lru" }

func (LRU) Select(episodes []*model.Episode, count int) []uuid.UUID {
	type timed struct {
		id uuid.UUID
		t  time.Time
	}
	entries := make([]timed, len(episodes))
	for i, ep := range episodes {
		t := ep.StartTime
		if ep.EndTime != nil {
			t = *ep.EndTime
		}
		entries[i] = timed{id: ep.ID, t: t}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].t.Before(entries[j].t) })
	return takeIDs(entries, count, func(e timed) uuid.UUID { return e.id })
}

// RelevanceWeighted evicts the episodes with the lowest reward total,
// breaking ties by age (oldest first).
type RelevanceWeighted struct{}

func (RelevanceWeighted) Name() string { return "relevance_weighted" }

func (RelevanceWeighted) Select(episodes []*model.Episode, count int) []uuid.UUID {
	type scored struct {
		id    uuid.UUID
		score float64
		t     time.Time
	}
	entries := make([]scored, len(episodes))
	for i, ep := range episodes {
		var score float64
		if ep.Reward != nil {
			score = ep.Reward.Total
		}
		t := ep.StartTime
		if ep.EndTime != nil {
			t = *ep.EndTime
		}
		entries[i] = scored{id: ep.ID, score: score, t: t}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score < entries[j].score
		}
		return entries[i].t.Before(entries[j].t)
	})
	return takeIDs(entries, count, func(e scored) uuid.UUID { return e.id })
}

func takeIDs[T any](entries []T, count int, id func(T) uuid.UUID) []uuid.UUID {
	if count > len(entries) {
		count = len(entries)
	}
	if count <= 0 {
		return nil
	}
	out := make([]uuid.UUID, count)
	for i := 0; i < count; i++ {
		out[i] = id(entries[i])
	}
	return out
}

// Manager governs a capacity-constrained working set of episodes.
type Manager struct {
	maxEpisodes int
	policy      EvictionPolicy
}

// New builds a Manager that keeps the working set at or below
// maxEpisodes using the given policy.
func New(maxEpisodes int, policy EvictionPolicy) *Manager {
	return &Manager{maxEpisodes: maxEpisodes, policy: policy}
}

// EvictIfNeeded returns the ids to drop from current so the working set
// has room for one more incoming episode without exceeding
// maxEpisodes. Returns nil if no eviction is needed.
func (m *Manager) EvictIfNeeded(current []*model.Episode) []uuid.UUID {
	overBy := len(current) - m.maxEpisodes + 1
	if overBy <= 0 {
		return nil
	}
	return m.policy.Select(current, overBy)
}

// MaxEpisodes returns the configured working-set ceiling.
func (m *Manager) MaxEpisodes() int { return m.maxEpisodes }

// Policy returns the active eviction policy.
func (m *Manager) Policy() EvictionPolicy { return m.policy }
