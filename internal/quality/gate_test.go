package quality

import (
	"testing"

	"github.com/selfmemory/engine/internal/model"
)

func successfulEpisode(t *testing.T) *model.Episode {
	t.Helper()
	ep := model.NewEpisode("fix flaky test", model.DefaultTaskContext(), model.TaskDebugging)
	step1 := model.NewStep(1, "grep", "search for failure")
	r1 := model.NewSuccessResult("found 3 matches")
	step1.Result = &r1
	step1.LatencyMs = 200
	step2 := model.NewStep(2, "editor", "patch test")
	r2 := model.NewSuccessResult("patched")
	step2.Result = &r2
	step2.LatencyMs = 500
	if err := ep.AddStep(step1); err != nil {
		t.Fatalf("add step1: %v", err)
	}
	if err := ep.AddStep(step2); err != nil {
		t.Fatalf("add step2: %v", err)
	}
	if err := ep.Complete(model.NewSuccessOutcome("tests pass", []string{"patch.diff"})); err != nil {
		t.Fatalf("complete: %v", err)
	}
	return ep
}

func TestScoreHighForWellFormedSuccessfulEpisode(t *testing.T) {
	a := New(DefaultConfig())
	ep := successfulEpisode(t)
	score := a.Score(ep)
	if score < 0.8 {
		t.Fatalf("expected high score, got %v", score)
	}
	if !a.Passes(ep) {
		t.Fatalf("expected episode to pass default threshold, score=%v", score)
	}
}

func TestScoreLowForEmptyEpisode(t *testing.T) {
	a := New(DefaultConfig())
	ep := model.NewEpisode("empty", model.DefaultTaskContext(), model.TaskOther)
	if err := ep.Complete(model.NewFailureOutcome("no steps taken", "")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	score := a.Score(ep)
	if score > 0.4 {
		t.Fatalf("expected low score for empty episode, got %v", score)
	}
}

func TestTestingConfigThresholdZeroAlwaysPasses(t *testing.T) {
	a := New(TestingConfig())
	ep := model.NewEpisode("empty", model.DefaultTaskContext(), model.TaskOther)
	if err := ep.Complete(model.NewFailureOutcome("no steps", "")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !a.Passes(ep) {
		t.Fatal("expected threshold-0 config to always pass")
	}
}

func TestSuccessWithoutArtifactsScoresLowerThanWithArtifacts(t *testing.T) {
	a := New(DefaultConfig())
	withArtifacts := successfulEpisode(t)

	without := model.NewEpisode("fix flaky test", model.DefaultTaskContext(), model.TaskDebugging)
	step := model.NewStep(1, "grep", "search")
	r := model.NewSuccessResult("ok")
	step.Result = &r
	if err := without.AddStep(step); err != nil {
		t.Fatalf("add step: %v", err)
	}
	if err := without.Complete(model.NewSuccessOutcome("done", nil)); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if a.Score(without) >= a.Score(withArtifacts) {
		t.Fatalf("expected episode without artifacts to score lower: without=%v with=%v",
			a.Score(without), a.Score(withArtifacts))
	}
}

func TestExtractSalientFeaturesCapturesDecisionsAndFailures(t *testing.T) {
	ep := successfulEpisode(t)
	failStep := model.NewStep(3, "compiler", "build")
	failStep.StepNumber = 3
	r := model.NewErrorResult("syntax error")
	failStep.Result = &r
	ep.Steps = append(ep.Steps, failStep)

	features := ExtractSalientFeatures(ep, DefaultSalientConfig())
	if len(features.CriticalDecisions) == 0 {
		t.Fatal("expected at least one critical decision")
	}
	if len(features.FailureModes) != 1 {
		t.Fatalf("expected 1 failure mode, got %d: %v", len(features.FailureModes), features.FailureModes)
	}
	if features.ResourceUsage.MaxLatencyMs != 500 {
		t.Fatalf("expected max latency 500, got %d", features.ResourceUsage.MaxLatencyMs)
	}
}

func TestExtractSalientFeaturesRespectsMaxCaps(t *testing.T) {
	ep := model.NewEpisode("many failures", model.DefaultTaskContext(), model.TaskDebugging)
	for i := 1; i <= 10; i++ {
		step := model.NewStep(i, "tool", "attempt")
		r := model.NewErrorResult("failed again")
		step.Result = &r
		if err := ep.AddStep(step); err != nil {
			t.Fatalf("add step %d: %v", i, err)
		}
	}
	if err := ep.Complete(model.NewFailureOutcome("gave up", "too many errors")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cfg := SalientConfig{MaxDecisions: 5, MaxInsights: 5, MaxFailures: 3}
	features := ExtractSalientFeatures(ep, cfg)
	if len(features.FailureModes) != 3 {
		t.Fatalf("expected cap of 3 failure modes, got %d", len(features.FailureModes))
	}
}
