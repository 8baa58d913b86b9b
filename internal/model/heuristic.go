package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Evidence backs a Heuristic with the episodes it was observed in.
type Evidence struct {
	EpisodeIDs  []uuid.UUID `json:"episode_ids"`
	SuccessRate float64     `json:"success_rate"`
	SampleSize  int         `json:"sample_size"`
}

// Heuristic is a condition -> action rule mined from decision steps
// across successful episodes. Confidence is deliberately left unbounded
// (success_rate * sqrt(sample_size)) per the Open Questions decision in
// SPEC_FULL.md; callers rank relatively rather than treating it as a
// probability.
type Heuristic struct {
	ID         uuid.UUID `json:"id"`
	Condition  string    `json:"condition"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Evidence   Evidence  `json:"evidence"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewHeuristic builds a heuristic with confidence computed from the
// evidence as success_rate * sqrt(sample_size).
func NewHeuristic(condition, action string, evidence Evidence) Heuristic {
	now := time.Now().UTC()
	return Heuristic{
		ID:         uuid.New(),
		Condition:  condition,
		Action:     action,
		Confidence: confidenceFromEvidence(evidence),
		Evidence:   evidence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func confidenceFromEvidence(e Evidence) float64 {
	return e.SuccessRate * math.Sqrt(float64(e.SampleSize))
}
