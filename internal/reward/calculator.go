package reward

import "github.com/selfmemory/engine/internal/model"

// Config tunes the calculator's complexity bonuses.
type Config struct {
	Efficiency           EfficiencyConfig
	SimpleBonus          float64
	ModerateBonus        float64
	ComplexBonus         float64
	LearningBonusNewTool float64
	LearningBonusRecover float64
}

// DefaultConfig returns the §4.6 defaults: complexity bonuses of
// 1.0/1.1/1.2 and a small flat learning bonus for novelty or recovery.
func DefaultConfig() Config {
	return Config{
		Efficiency:           DefaultEfficiencyConfig(),
		SimpleBonus:          1.0,
		ModerateBonus:        1.1,
		ComplexBonus:         1.2,
		LearningBonusNewTool: 0.05,
		LearningBonusRecover: 0.05,
	}
}

// Calculator computes the decomposed RewardScore for a completed
// episode.
type Calculator struct {
	cfg        Config
	efficiency *EfficiencyCalculator
}

// New builds a reward Calculator with the given config.
func New(cfg Config) *Calculator {
	return &Calculator{cfg: cfg, efficiency: NewEfficiencyCalculator(cfg.Efficiency)}
}

// Calculate computes the full RewardScore for ep. knownTools is the set
// of tool names the caller has seen across prior episodes; it is
// consulted (but never mutated) to detect whether this episode
// introduces novelty for the learning bonus.
func (c *Calculator) Calculate(ep *model.Episode, knownTools map[string]struct{}) model.RewardScore {
	base := c.base(ep)
	efficiency := c.efficiency.Calculate(ep)
	complexity := c.complexityBonus(ep)
	quality := c.qualityMultiplier(ep)
	learning := c.learningBonus(ep, knownTools)

	total := base * efficiency * complexity * quality + learning

	return model.RewardScore{
		Total:             total,
		Base:              base,
		Efficiency:        efficiency,
		ComplexityBonus:   complexity,
		QualityMultiplier: quality,
		LearningBonus:     learning,
	}
}

func (c *Calculator) base(ep *model.Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	switch ep.Outcome.Kind {
	case model.OutcomeSuccess:
		return 1.0
	case model.OutcomePartialSuccess:
		return 0.5 * ep.Outcome.PartialSuccessRate()
	default:
		return 0.0
	}
}

func (c *Calculator) complexityBonus(ep *model.Episode) float64 {
	switch ep.Context.Complexity {
	case model.ComplexityComplex:
		return c.cfg.ComplexBonus
	case model.ComplexityModerate:
		return c.cfg.ModerateBonus
	default:
		return c.cfg.SimpleBonus
	}
}

// qualityMultiplier derives from salient features and step success
// rate: a fully successful episode with salient features recorded
// scores highest, an episode with no steps scores the floor.
func (c *Calculator) qualityMultiplier(ep *model.Episode) float64 {
	if len(ep.Steps) == 0 {
		return 0.5
	}
	successRate := ep.StepSuccessRate()
	multiplier := 0.5 + 0.5*successRate
	if ep.SalientFeatures != nil && len(ep.SalientFeatures.KeyInsights) > 0 {
		multiplier += 0.1
	}
	return multiplier
}

// learningBonus adds a small additive term when the episode used a tool
// absent from knownTools, or recovered from a step error (a failed step
// followed later by a successful step using the same tool).
func (c *Calculator) learningBonus(ep *model.Episode, knownTools map[string]struct{}) float64 {
	var bonus float64
	for tool := range ep.ToolSet() {
		if _, known := knownTools[tool]; !known {
			bonus += c.cfg.LearningBonusNewTool
			break
		}
	}
	if recoveredFromError(ep) {
		bonus += c.cfg.LearningBonusRecover
	}
	return bonus
}

func recoveredFromError(ep *model.Episode) bool {
	failedTools := make(map[string]bool)
	for _, s := range ep.Steps {
		if s.Result == nil {
			continue
		}
		if !s.Result.IsSuccess() {
			failedTools[s.Tool] = true
			continue
		}
		if failedTools[s.Tool] {
			return true
		}
	}
	return false
}
