package reflect

import (
	"testing"

	"github.com/selfmemory/engine/internal/model"
)

func stepWithResult(n int, tool string, ok bool, latencyMs int64) model.ExecutionStep {
	s := model.NewStep(n, tool, "do something")
	var r model.ExecutionResult
	if ok {
		r = model.NewSuccessResult("done")
	} else {
		r = model.NewErrorResult("nope")
	}
	s.Result = &r
	s.LatencyMs = latencyMs
	return s
}

func TestSuccessesFromConsecutiveStreakAndArtifacts(t *testing.T) {
	ep := model.NewEpisode("streaky", model.DefaultTaskContext(), model.TaskTesting)
	_ = ep.AddStep(stepWithResult(1, "grep", true, 10))
	_ = ep.AddStep(stepWithResult(2, "editor", true, 10))
	_ = ep.AddStep(stepWithResult(3, "editor", true, 10))
	_ = ep.Complete(model.NewSuccessOutcome("done", []string{"out.diff"}))

	g := New(DefaultConfig())
	r := g.Generate(ep)
	if len(r.Successes) == 0 {
		t.Fatal("expected at least one success entry")
	}
}

func TestImprovementsFromRepeatedFailuresAndLatencyOutliers(t *testing.T) {
	ep := model.NewEpisode("troubled", model.DefaultTaskContext(), model.TaskDebugging)
	_ = ep.AddStep(stepWithResult(1, "compiler", false, 500))
	_ = ep.AddStep(stepWithResult(2, "compiler", false, 500))
	_ = ep.AddStep(stepWithResult(3, "profiler", true, 20000))
	_ = ep.Complete(model.NewFailureOutcome("gave up", "repeated compile errors"))

	g := New(DefaultConfig())
	r := g.Generate(ep)
	if len(r.Improvements) < 2 {
		t.Fatalf("expected at least 2 improvement entries (repeated failure + latency outlier), got %v", r.Improvements)
	}
}

func TestInsightsFromToolReuseAndRecovery(t *testing.T) {
	ep := model.NewEpisode("resourceful", model.DefaultTaskContext(), model.TaskDebugging)
	_ = ep.AddStep(stepWithResult(1, "grep", false, 10))
	_ = ep.AddStep(stepWithResult(2, "grep", true, 10))
	_ = ep.AddStep(stepWithResult(3, "grep", true, 10))
	_ = ep.AddStep(stepWithResult(4, "grep", true, 10))
	_ = ep.Complete(model.NewSuccessOutcome("recovered and reused", nil))

	g := New(DefaultConfig())
	r := g.Generate(ep)
	if len(r.Insights) < 2 {
		t.Fatalf("expected reuse and recovery insights, got %v", r.Insights)
	}
}

func TestCategoriesRespectMaxCap(t *testing.T) {
	ep := model.NewEpisode("many tools", model.DefaultTaskContext(), model.TaskDebugging)
	for i := 1; i <= 12; i++ {
		tool := "tool"
		_ = ep.AddStep(stepWithResult(i, tool, false, 20000))
	}
	_ = ep.Complete(model.NewFailureOutcome("too many slow failures", ""))

	cfg := Config{MaxPerCategory: 3, LongLatencyMs: 10_000}
	g := New(cfg)
	r := g.Generate(ep)
	if len(r.Improvements) > 3 {
		t.Fatalf("expected improvements capped at 3, got %d", len(r.Improvements))
	}
}

func TestGenerateSetsTimestamp(t *testing.T) {
	ep := model.NewEpisode("quick", model.DefaultTaskContext(), model.TaskTesting)
	_ = ep.Complete(model.NewSuccessOutcome("ok", nil))

	g := New(DefaultConfig())
	r := g.Generate(ep)
	if r.GeneratedAt.IsZero() {
		t.Fatal("expected GeneratedAt to be set")
	}
}
