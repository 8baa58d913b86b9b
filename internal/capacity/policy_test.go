package capacity

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
)

func newCapEpisode(desc string) *model.Episode {
	ctx := model.DefaultTaskContext()
	ctx.Domain = "testing"
	return model.NewEpisode(desc, ctx, model.TaskTesting)
}

func TestLRUEvictsOldestFirst(t *testing.T) {
	old := newCapEpisode("old task")
	old.StartTime = time.Now().Add(-2 * time.Hour)
	middle := newCapEpisode("middle task")
	middle.StartTime = time.Now().Add(-1 * time.Hour)
	newest := newCapEpisode("new task")

	mgr := New(2, LRU{})
	toEvict := mgr.EvictIfNeeded([]*model.Episode{old, middle, newest})

	if len(toEvict) != 2 {
		t.Fatalf("expected 2 evictions (over by 1, plus room for 1 new), got %d", len(toEvict))
	}
	if !containsID(toEvict, old.ID) || !containsID(toEvict, middle.ID) {
		t.Fatalf("expected old and middle evicted, got %v", toEvict)
	}
	if containsID(toEvict, newest.ID) {
		t.Fatal("expected newest episode to survive eviction")
	}
}

func TestRelevanceWeightedEvictsLowestRewardFirst(t *testing.T) {
	low := newCapEpisode("low quality")
	low.Reward = &model.RewardScore{Total: 0.2}
	medium := newCapEpisode("medium quality")
	medium.Reward = &model.RewardScore{Total: 1.0}
	high := newCapEpisode("high quality")
	high.Reward = &model.RewardScore{Total: 1.8}

	mgr := New(2, RelevanceWeighted{})
	toEvict := mgr.EvictIfNeeded([]*model.Episode{low, medium, high})

	if len(toEvict) != 2 {
		t.Fatalf("expected 2 evictions, got %d", len(toEvict))
	}
	if !containsID(toEvict, low.ID) || !containsID(toEvict, medium.ID) {
		t.Fatalf("expected low and medium quality evicted, got %v", toEvict)
	}
	if containsID(toEvict, high.ID) {
		t.Fatal("expected high quality episode to survive eviction")
	}
}

func TestRelevanceWeightedBreaksTiesByAge(t *testing.T) {
	olderTie := newCapEpisode("older tie")
	olderTie.StartTime = time.Now().Add(-time.Hour)
	olderTie.Reward = &model.RewardScore{Total: 0.5}
	newerTie := newCapEpisode("newer tie")
	newerTie.Reward = &model.RewardScore{Total: 0.5}

	mgr := New(1, RelevanceWeighted{})
	toEvict := mgr.EvictIfNeeded([]*model.Episode{olderTie, newerTie})
	// Capacity 1 with two episodes evicts both (over by 1, plus room for 1 new).
	if len(toEvict) != 2 || toEvict[0] != olderTie.ID {
		t.Fatalf("expected both evicted with the older tied episode first, got %v", toEvict)
	}
}

func TestEvictIfNeededReturnsNilWhenUnderCapacity(t *testing.T) {
	mgr := New(10, LRU{})
	toEvict := mgr.EvictIfNeeded([]*model.Episode{newCapEpisode("a"), newCapEpisode("b")})
	if toEvict != nil {
		t.Fatalf("expected no eviction under capacity, got %v", toEvict)
	}
}

func containsID(ids []uuid.UUID, target uuid.UUID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
