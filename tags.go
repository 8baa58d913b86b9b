package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
)

// GetTags returns the episode's current tag set, cache tier first.
func (m *SelfLearningMemory) GetTags(ctx context.Context, id uuid.UUID) ([]string, error) {
	if tags, err := m.cacheStore.GetEpisodeTags(ctx, id); err == nil {
		return tags, nil
	}
	return m.durableStore.GetEpisodeTags(ctx, id)
}

// SetTags replaces an episode's tag set in both storage tiers.
func (m *SelfLearningMemory) SetTags(ctx context.Context, id uuid.UUID, tags []string) error {
	if err := m.durableStore.SetEpisodeTags(ctx, id, tags); err != nil {
		return err
	}
	return m.cacheStore.SetEpisodeTags(ctx, id, tags)
}

// AddTag inserts a single tag, case-insensitively deduplicated via
// model.Episode's own tag normalization.
func (m *SelfLearningMemory) AddTag(ctx context.Context, id uuid.UUID, tag string) error {
	current, err := m.durableStore.GetEpisodeTags(ctx, id)
	if err != nil {
		return err
	}
	ep := &model.Episode{}
	ep.SetTags(current)
	ep.AddTag(tag)
	return m.SetTags(ctx, id, ep.GetTags())
}

// RemoveTag deletes a single tag if present.
func (m *SelfLearningMemory) RemoveTag(ctx context.Context, id uuid.UUID, tag string) error {
	current, err := m.durableStore.GetEpisodeTags(ctx, id)
	if err != nil {
		return err
	}
	ep := &model.Episode{}
	ep.SetTags(current)
	ep.RemoveTag(tag)
	return m.SetTags(ctx, id, ep.GetTags())
}
