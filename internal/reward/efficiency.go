// Package reward implements the reward calculator described in
// SPEC_FULL.md §4.6: a base score from the outcome, an efficiency
// multiplier from duration and step count, a complexity bonus, a
// quality multiplier, and a small learning bonus.
package reward

import (
	"math"

	"github.com/selfmemory/engine/internal/model"
)

// EfficiencyConfig tunes the efficiency calculator's ideal values and
// clamp bounds, grounded on the original implementation's
// exponential-decay-from-an-ideal-value shape.
type EfficiencyConfig struct {
	DurationWeight    float64
	StepCountWeight   float64
	MinMultiplier     float64
	MaxMultiplier     float64
	IdealDurationSecs float64
	IdealStepCount    float64
}

// DefaultEfficiencyConfig returns the §4.6 clamp defaults (0.5, 2.0)
// with equal duration/step weighting and a one-minute, five-step ideal.
func DefaultEfficiencyConfig() EfficiencyConfig {
	return EfficiencyConfig{
		DurationWeight:    0.5,
		StepCountWeight:   0.5,
		MinMultiplier:     0.5,
		MaxMultiplier:     2.0,
		IdealDurationSecs: 60,
		IdealStepCount:    5,
	}
}

// EfficiencyCalculator computes the bounded efficiency multiplier for a
// completed episode from its duration and step count, each decaying
// exponentially from a configured ideal value.
type EfficiencyCalculator struct {
	cfg EfficiencyConfig
}

// NewEfficiencyCalculator builds a calculator with the given config.
func NewEfficiencyCalculator(cfg EfficiencyConfig) *EfficiencyCalculator {
	return &EfficiencyCalculator{cfg: cfg}
}

// Calculate computes the clamped efficiency multiplier for ep.
func (c *EfficiencyCalculator) Calculate(ep *model.Episode) float64 {
	duration := c.durationEfficiency(ep)
	steps := c.stepCountEfficiency(ep)
	combined := duration*c.cfg.DurationWeight + steps*c.cfg.StepCountWeight
	return clamp(combined, c.cfg.MinMultiplier, c.cfg.MaxMultiplier)
}

func (c *EfficiencyCalculator) durationEfficiency(ep *model.Episode) float64 {
	d := ep.Duration()
	if d == nil {
		return 1.0
	}
	secs := d.Seconds()
	if secs <= 0 {
		return c.cfg.MaxMultiplier
	}
	ratio := secs / c.cfg.IdealDurationSecs
	decay := math.Exp(-ratio / 2.0)
	return c.cfg.MinMultiplier + decay*(c.cfg.MaxMultiplier-c.cfg.MinMultiplier)
}

func (c *EfficiencyCalculator) stepCountEfficiency(ep *model.Episode) float64 {
	n := len(ep.Steps)
	if n == 0 {
		return c.cfg.MinMultiplier
	}
	ratio := float64(n) / c.cfg.IdealStepCount
	decay := math.Exp(-ratio / 2.0)
	return c.cfg.MinMultiplier + decay*(c.cfg.MaxMultiplier-c.cfg.MinMultiplier)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
