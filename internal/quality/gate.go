// Package quality implements the pre-storage quality gate described in
// SPEC_FULL.md §4.5: a [0,1] quality score computed from step shape and
// outcome, gating persistence, plus the salient-feature extractor that
// populates an episode's SalientFeatures once it passes.
package quality

import (
	"github.com/selfmemory/engine/internal/model"
)

// Config tunes the assessor's expected-shape assumptions and the gate
// threshold.
type Config struct {
	Threshold          float64
	ExpectedMinSteps   int
	ExpectedMaxSteps   int
	ExpectedMaxLatencyMs int64
}

// DefaultConfig returns the §4.5 defaults: threshold 0.5, an expected
// step range of 1-20, and a latency plausibility ceiling of 5 minutes
// per step.
func DefaultConfig() Config {
	return Config{
		Threshold:            0.5,
		ExpectedMinSteps:     1,
		ExpectedMaxSteps:     20,
		ExpectedMaxLatencyMs: 5 * 60 * 1000,
	}
}

// TestingConfig returns a threshold-0 configuration suitable for
// in-memory test fixtures, per spec.md §4.5's explicit allowance.
func TestingConfig() Config {
	cfg := DefaultConfig()
	cfg.Threshold = 0
	return cfg
}

// Assessor computes the [0,1] quality score for a completed episode.
type Assessor struct {
	cfg Config
}

// New builds an Assessor with the given config.
func New(cfg Config) *Assessor {
	return &Assessor{cfg: cfg}
}

// Score computes the composite quality score from six signals: step
// count fit, successful-step fraction, outcome presence, artifact
// presence on success, latency plausibility, and tool diversity.
func (a *Assessor) Score(ep *model.Episode) float64 {
	signals := []float64{
		a.stepCountFit(ep),
		ep.StepSuccessRate(),
		outcomePresence(ep),
		artifactPresence(ep),
		a.latencyPlausibility(ep),
		toolDiversity(ep),
	}
	var sum float64
	for _, s := range signals {
		sum += s
	}
	return sum / float64(len(signals))
}

// Passes reports whether an episode's score meets the configured
// threshold.
func (a *Assessor) Passes(ep *model.Episode) bool {
	return a.Score(ep) >= a.cfg.Threshold
}

func (a *Assessor) stepCountFit(ep *model.Episode) float64 {
	n := len(ep.Steps)
	if n == 0 {
		return 0
	}
	if n >= a.cfg.ExpectedMinSteps && n <= a.cfg.ExpectedMaxSteps {
		return 1
	}
	var distance int
	if n < a.cfg.ExpectedMinSteps {
		distance = a.cfg.ExpectedMinSteps - n
	} else {
		distance = n - a.cfg.ExpectedMaxSteps
	}
	penalty := float64(distance) / float64(a.cfg.ExpectedMaxSteps)
	score := 1 - penalty
	if score < 0 {
		return 0
	}
	return score
}

func outcomePresence(ep *model.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	return 1
}

func artifactPresence(ep *model.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	if ep.Outcome.Kind != model.OutcomeSuccess {
		// Artifacts are only expected on success; a non-success outcome
		// neither earns nor loses credit here.
		return 1
	}
	if len(ep.Outcome.Artifacts) > 0 {
		return 1
	}
	return 0
}

func (a *Assessor) latencyPlausibility(ep *model.Episode) float64 {
	if len(ep.Steps) == 0 {
		return 0
	}
	var implausible int
	for _, s := range ep.Steps {
		if s.LatencyMs < 0 || s.LatencyMs > a.cfg.ExpectedMaxLatencyMs {
			implausible++
		}
	}
	return 1 - float64(implausible)/float64(len(ep.Steps))
}

func toolDiversity(ep *model.Episode) float64 {
	if len(ep.Steps) == 0 {
		return 0
	}
	tools := ep.ToolSet()
	ratio := float64(len(tools)) / float64(len(ep.Steps))
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}
