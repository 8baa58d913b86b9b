package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/spatiotemporal"
)

func newFixture(t *testing.T) (*spatiotemporal.Index, map[uuid.UUID]*model.Episode) {
	t.Helper()
	idx := spatiotemporal.New()
	episodes := make(map[uuid.UUID]*model.Episode)

	mk := func(domain string, taskType model.TaskType, desc string, day int) *model.Episode {
		ctx := model.DefaultTaskContext()
		ctx.Domain = domain
		ep := model.NewEpisode(desc, ctx, taskType)
		episodes[ep.ID] = ep
		idx.Insert(ep.ID, time.Date(2026, time.March, day, 12, 0, 0, 0, time.UTC))
		return ep
	}

	mk("billing", model.TaskDebugging, "fix invoice rounding error", 5)
	mk("billing", model.TaskCodeGeneration, "generate invoice pdf template", 4)
	mk("search", model.TaskDebugging, "fix ranking regression", 3)

	return idx, episodes
}

func lookups(episodes map[uuid.UUID]*model.Episode) (EpisodeLookup, EmbeddingLookup) {
	epLookup := func(ctx context.Context, id uuid.UUID) (*model.Episode, bool) {
		ep, ok := episodes[id]
		return ep, ok
	}
	embLookup := func(ctx context.Context, id uuid.UUID) (model.Embedding, bool) {
		return nil, false
	}
	return epLookup, embLookup
}

func TestRetrieveFiltersByDomain(t *testing.T) {
	idx, episodes := newFixture(t)
	epLookup, embLookup := lookups(episodes)
	r := New(DefaultConfig(), idx, epLookup, embLookup)

	results := r.Retrieve(context.Background(), Query{Domain: "billing", Description: "invoice", Limit: 10})
	if len(results) != 2 {
		t.Fatalf("expected 2 billing episodes, got %d", len(results))
	}
	for _, res := range results {
		if res.Episode.Context.Domain != "billing" {
			t.Fatalf("expected only billing domain results, got %s", res.Episode.Context.Domain)
		}
	}
}

func TestRetrieveFiltersByTaskType(t *testing.T) {
	idx, episodes := newFixture(t)
	epLookup, embLookup := lookups(episodes)
	r := New(DefaultConfig(), idx, epLookup, embLookup)

	results := r.Retrieve(context.Background(), Query{TaskType: model.TaskDebugging, Limit: 10})
	if len(results) != 2 {
		t.Fatalf("expected 2 debugging episodes, got %d", len(results))
	}
	for _, res := range results {
		if res.Episode.TaskType != model.TaskDebugging {
			t.Fatalf("expected only debugging task type, got %s", res.Episode.TaskType)
		}
	}
}

func TestRetrievePassThroughWithoutFilters(t *testing.T) {
	idx, episodes := newFixture(t)
	epLookup, embLookup := lookups(episodes)
	r := New(DefaultConfig(), idx, epLookup, embLookup)

	results := r.Retrieve(context.Background(), Query{Limit: 10})
	if len(results) != 3 {
		t.Fatalf("expected all 3 episodes with no filters, got %d", len(results))
	}
}

func TestRetrieveRanksMoreRecentClusterHigherAllElseEqual(t *testing.T) {
	idx := spatiotemporal.New()
	episodes := make(map[uuid.UUID]*model.Episode)
	ctx := model.DefaultTaskContext()

	older := model.NewEpisode("investigate timeout", ctx, model.TaskDebugging)
	newer := model.NewEpisode("investigate timeout", ctx, model.TaskDebugging)
	episodes[older.ID] = older
	episodes[newer.ID] = newer
	idx.Insert(older.ID, time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC))
	idx.Insert(newer.ID, time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC))

	epLookup, embLookup := lookups(episodes)
	r := New(DefaultConfig(), idx, epLookup, embLookup)
	results := r.Retrieve(context.Background(), Query{Description: "investigate timeout", Limit: 10})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].EpisodeID != newer.ID {
		t.Fatalf("expected the more recent episode ranked first")
	}
}

func TestRetrieveUsesCosineSimilarityWhenEmbeddingsPresent(t *testing.T) {
	idx := spatiotemporal.New()
	episodes := make(map[uuid.UUID]*model.Episode)
	ctx := model.DefaultTaskContext()

	close := model.NewEpisode("unrelated text", ctx, model.TaskOther)
	far := model.NewEpisode("also unrelated text", ctx, model.TaskOther)
	episodes[close.ID] = close
	episodes[far.ID] = far
	now := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC)
	idx.Insert(close.ID, now)
	idx.Insert(far.ID, now)

	embeddings := map[uuid.UUID]model.Embedding{
		close.ID: {1, 0, 0},
		far.ID:   {0, 1, 0},
	}
	epLookup := func(ctx context.Context, id uuid.UUID) (*model.Episode, bool) {
		ep, ok := episodes[id]
		return ep, ok
	}
	embLookup := func(ctx context.Context, id uuid.UUID) (model.Embedding, bool) {
		e, ok := embeddings[id]
		return e, ok
	}

	r := New(DefaultConfig(), idx, epLookup, embLookup)
	results := r.Retrieve(context.Background(), Query{Embedding: model.Embedding{1, 0, 0}, Limit: 10})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].EpisodeID != close.ID {
		t.Fatalf("expected the cosine-aligned episode ranked first")
	}
}

func TestRetrieveRespectsLimit(t *testing.T) {
	idx, episodes := newFixture(t)
	epLookup, embLookup := lookups(episodes)
	r := New(DefaultConfig(), idx, epLookup, embLookup)

	results := r.Retrieve(context.Background(), Query{Limit: 1})
	if len(results) != 1 {
		t.Fatalf("expected limit to truncate to 1 result, got %d", len(results))
	}
}

func TestRetrieveEmptyIndexReturnsNil(t *testing.T) {
	idx := spatiotemporal.New()
	epLookup, embLookup := lookups(map[uuid.UUID]*model.Episode{})
	r := New(DefaultConfig(), idx, epLookup, embLookup)

	if results := r.Retrieve(context.Background(), Query{Limit: 10}); results != nil {
		t.Fatalf("expected nil results for empty index, got %v", results)
	}
}
