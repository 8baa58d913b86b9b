package reward

import (
	"testing"
	"time"

	"github.com/selfmemory/engine/internal/model"
)

func newTestEpisode() *model.Episode {
	ctx := model.TaskContext{Language: "go", Complexity: model.ComplexitySimple, Domain: "testing"}
	return model.NewEpisode("test task", ctx, model.TaskTesting)
}

func addSuccessfulSteps(ep *model.Episode, n int) {
	for i := 0; i < n; i++ {
		step := model.NewStep(i+1, "tool", "action")
		r := model.NewSuccessResult("ok")
		step.Result = &r
		_ = ep.AddStep(step)
	}
}

func TestEfficiencyFastExecutionExceedsBaseline(t *testing.T) {
	calc := NewEfficiencyCalculator(DefaultEfficiencyConfig())
	ep := newTestEpisode()
	addSuccessfulSteps(ep, 3)
	_ = ep.Complete(model.NewSuccessOutcome("quick", nil))

	got := calc.Calculate(ep)
	if got <= 1.0 {
		t.Fatalf("expected efficiency > 1.0 for a fast few-step episode, got %v", got)
	}
}

func TestEfficiencySlowExecutionBelowBaseline(t *testing.T) {
	calc := NewEfficiencyCalculator(DefaultEfficiencyConfig())
	ep := newTestEpisode()
	ep.StartTime = time.Now().Add(-5 * time.Minute)
	addSuccessfulSteps(ep, 50)
	_ = ep.Complete(model.NewSuccessOutcome("slow", nil))

	got := calc.Calculate(ep)
	if got >= 1.0 {
		t.Fatalf("expected efficiency < 1.0 for a slow many-step episode, got %v", got)
	}
}

func TestEfficiencyClampedToBounds(t *testing.T) {
	cfg := DefaultEfficiencyConfig()
	calc := NewEfficiencyCalculator(cfg)
	ep := newTestEpisode()
	_ = ep.Complete(model.NewSuccessOutcome("instant", nil))

	got := calc.Calculate(ep)
	if got < cfg.MinMultiplier || got > cfg.MaxMultiplier {
		t.Fatalf("expected efficiency within [%v,%v], got %v", cfg.MinMultiplier, cfg.MaxMultiplier, got)
	}
}

func TestBaseRewardByOutcomeKind(t *testing.T) {
	c := New(DefaultConfig())

	success := newTestEpisode()
	addSuccessfulSteps(success, 2)
	_ = success.Complete(model.NewSuccessOutcome("ok", []string{"out.txt"}))
	if got := c.Calculate(success, nil).Base; got != 1.0 {
		t.Errorf("success base = %v, want 1.0", got)
	}

	failure := newTestEpisode()
	_ = failure.Complete(model.NewFailureOutcome("broke", "bad"))
	if got := c.Calculate(failure, nil).Base; got != 0.0 {
		t.Errorf("failure base = %v, want 0.0", got)
	}

	partial := newTestEpisode()
	_ = partial.Complete(model.NewPartialSuccessOutcome("half", []string{"a"}, []string{"b"}))
	if got := c.Calculate(partial, nil).Base; got != 0.25 {
		t.Errorf("partial base = %v, want 0.25 (0.5 * 1/2)", got)
	}
}

func TestComplexityBonusScalesWithComplexity(t *testing.T) {
	c := New(DefaultConfig())

	simple := newTestEpisode()
	_ = simple.Complete(model.NewSuccessOutcome("ok", nil))
	simpleReward := c.Calculate(simple, nil)

	complex := model.NewEpisode("hard task", model.TaskContext{Complexity: model.ComplexityComplex, Domain: "testing"}, model.TaskDebugging)
	_ = complex.Complete(model.NewSuccessOutcome("ok", nil))
	complexReward := c.Calculate(complex, nil)

	if complexReward.ComplexityBonus <= simpleReward.ComplexityBonus {
		t.Fatalf("expected complex bonus %v > simple bonus %v", complexReward.ComplexityBonus, simpleReward.ComplexityBonus)
	}
}

func TestLearningBonusForNewTool(t *testing.T) {
	c := New(DefaultConfig())
	ep := newTestEpisode()
	addSuccessfulSteps(ep, 1)
	_ = ep.Complete(model.NewSuccessOutcome("ok", nil))

	withoutKnown := c.Calculate(ep, nil)
	known := map[string]struct{}{"tool": {}}
	withKnown := c.Calculate(ep, known)

	if withoutKnown.LearningBonus <= withKnown.LearningBonus {
		t.Fatalf("expected novelty bonus when tool unknown: novel=%v known=%v",
			withoutKnown.LearningBonus, withKnown.LearningBonus)
	}
}

func TestLearningBonusForErrorRecovery(t *testing.T) {
	c := New(DefaultConfig())
	ep := newTestEpisode()
	fail := model.NewStep(1, "tool", "try")
	failResult := model.NewErrorResult("boom")
	fail.Result = &failResult
	_ = ep.AddStep(fail)

	recover := model.NewStep(2, "tool", "retry")
	okResult := model.NewSuccessResult("fixed")
	recover.Result = &okResult
	_ = ep.AddStep(recover)
	_ = ep.Complete(model.NewSuccessOutcome("recovered", nil))

	known := map[string]struct{}{"tool": {}}
	got := c.Calculate(ep, known)
	if got.LearningBonus < DefaultConfig().LearningBonusRecover {
		t.Fatalf("expected recovery bonus included, got %v", got.LearningBonus)
	}
}

func TestTotalRewardIsPositiveForGoodEpisode(t *testing.T) {
	c := New(DefaultConfig())
	ep := newTestEpisode()
	addSuccessfulSteps(ep, 3)
	_ = ep.Complete(model.NewSuccessOutcome("all good", []string{"artifact"}))

	got := c.Calculate(ep, nil)
	if got.Total <= 0 {
		t.Fatalf("expected positive total reward, got %v", got.Total)
	}
}
