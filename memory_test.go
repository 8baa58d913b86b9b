package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/memconfig"
	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/quality"
)

func newTestEngine(t *testing.T) *SelfLearningMemory {
	t.Helper()
	cfg := memconfig.Default()
	cfg.Quality = quality.TestingConfig()
	m, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func webAPIContext() model.TaskContext {
	return model.TaskContext{
		Language:   "rust",
		Framework:  "axum",
		Complexity: model.ComplexityModerate,
		Domain:     "web-api",
		Tags:       []string{"rest"},
	}
}

func successStep(tool string) model.ExecutionStep {
	step := model.NewStep(0, tool, "invoke")
	step.Result = &model.ExecutionResult{Kind: model.ResultSuccess}
	return step
}

// Scenario 1: episode accept, extract, retrieve.
func TestEpisodeAcceptExtractRetrieve(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	id, err := m.StartEpisode("Build REST API with authentication", webAPIContext(), model.TaskCodeGeneration)
	if err != nil {
		t.Fatalf("StartEpisode: %v", err)
	}

	for _, tool := range []string{"create_router", "add_middleware", "define_routes", "write_handlers", "run_tests"} {
		m.LogStep(id, successStep(tool))
	}

	ep, err := m.CompleteEpisode(ctx, id, model.NewSuccessOutcome("API created", []string{"api.rs"}))
	if err != nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}
	if ep == nil {
		t.Fatal("expected episode to pass the quality gate")
	}
	if ep.Reward == nil || ep.Reward.Total <= 0 {
		t.Fatalf("expected positive reward total, got %+v", ep.Reward)
	}

	stored, err := m.GetEpisode(ctx, id)
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if stored.Description != "Build REST API with authentication" {
		t.Fatalf("unexpected persisted description %q", stored.Description)
	}

	patterns, err := m.durableStore.ListPatterns(ctx, allEpisodesLimit)
	if err != nil {
		t.Fatalf("ListPatterns: %v", err)
	}
	var sawToolSequence, sawContextPattern bool
	for _, p := range patterns {
		if p.Kind == model.PatternToolSequence && len(p.Tools) > 0 && p.Tools[0] == "create_router" {
			sawToolSequence = true
		}
		if p.Kind == model.PatternContext && containsString(p.Features, "domain:web-api") {
			sawContextPattern = true
		}
	}
	if !sawToolSequence {
		t.Error("expected a ToolSequence pattern starting with create_router")
	}
	if !sawContextPattern {
		t.Error("expected a ContextPattern with feature domain:web-api")
	}
}

// Scenario 2: retrieval relevance, chained off scenario 1.
func TestRetrievalRelevance(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	id, _ := m.StartEpisode("Build REST API with authentication", webAPIContext(), model.TaskCodeGeneration)
	for _, tool := range []string{"create_router", "add_middleware", "define_routes", "write_handlers", "run_tests"} {
		m.LogStep(id, successStep(tool))
	}
	if _, err := m.CompleteEpisode(ctx, id, model.NewSuccessOutcome("API created", []string{"api.rs"})); err != nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}

	patterns, err := m.RetrieveRelevantPatterns(ctx, webAPIContext(), 3)
	if err != nil {
		t.Fatalf("RetrieveRelevantPatterns: %v", err)
	}
	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}
	found := false
	for _, p := range patterns {
		if p.Kind == model.PatternToolSequence {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected the tool sequence pattern among the top recommendations")
	}
}

// Scenario 4: acyclic relationship rejection.
func TestAcyclicRelationshipRejectsCycle(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	makeEpisode := func(desc string) uuid.UUID {
		id, _ := m.StartEpisode(desc, webAPIContext(), model.TaskCodeGeneration)
		m.LogStep(id, successStep("noop"))
		ep, err := m.CompleteEpisode(ctx, id, model.NewSuccessOutcome("done", nil))
		if err != nil || ep == nil {
			t.Fatalf("CompleteEpisode(%s): %v", desc, err)
		}
		return ep.ID
	}
	a, b, c := makeEpisode("A"), makeEpisode("B"), makeEpisode("C")

	rAB := model.NewRelationship(a, b, model.RelationDependsOn, "test")
	rBC := model.NewRelationship(b, c, model.RelationDependsOn, "test")
	rCA := model.NewRelationship(c, a, model.RelationDependsOn, "test")

	if err := m.AddRelationship(ctx, &rAB); err != nil {
		t.Fatalf("AddRelationship A->B: %v", err)
	}
	if err := m.AddRelationship(ctx, &rBC); err != nil {
		t.Fatalf("AddRelationship B->C: %v", err)
	}
	if err := m.AddRelationship(ctx, &rCA); err == nil {
		t.Fatal("expected CycleDetected adding C->A")
	}
}

// Scenario 5: fuzzy search tolerance.
func TestFuzzySearchTolerance(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	taskCtx := model.TaskContext{Complexity: model.ComplexityModerate, Domain: "database"}
	id, _ := m.StartEpisode("Design PostgreSQL schema", taskCtx, model.TaskCodeGeneration)
	m.LogStep(id, successStep("design_schema"))
	ep, err := m.CompleteEpisode(ctx, id, model.NewSuccessOutcome("schema designed", nil))
	if err != nil || ep == nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}

	fuzzy, err := m.ListEpisodesFiltered(ctx, Filter{
		SearchText:   "databse",
		SearchMode:   SearchMode{Kind: SearchModeFuzzy, Threshold: 0.8},
		SearchFields: []SearchField{FieldAll},
	}, 0, 0)
	if err != nil {
		t.Fatalf("fuzzy ListEpisodesFiltered: %v", err)
	}
	if !containsEpisode(fuzzy, ep.ID) {
		t.Error("expected fuzzy search for 'databse' to match the episode")
	}

	exact, err := m.ListEpisodesFiltered(ctx, Filter{
		SearchText:   "databse",
		SearchMode:   SearchMode{Kind: SearchModeExact},
		SearchFields: []SearchField{FieldAll},
	}, 0, 0)
	if err != nil {
		t.Fatalf("exact ListEpisodesFiltered: %v", err)
	}
	if containsEpisode(exact, ep.ID) {
		t.Error("expected exact search for 'databse' not to match the episode")
	}
}

func containsEpisode(eps []*model.Episode, id uuid.UUID) bool {
	for _, ep := range eps {
		if ep.ID == id {
			return true
		}
	}
	return false
}
