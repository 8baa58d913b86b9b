package model

import (
	"time"

	"github.com/google/uuid"
)

// PatternKind discriminates the four pattern shapes the extractors mine.
type PatternKind string

const (
	PatternToolSequence  PatternKind = "tool_sequence"
	PatternDecisionPoint PatternKind = "decision_point"
	PatternErrorRecovery PatternKind = "error_recovery"
	PatternContext       PatternKind = "context_pattern"
)

// PatternEffectiveness tracks how a pattern has performed since it was
// first mined, shared across all four pattern kinds.
type PatternEffectiveness struct {
	TimesApplied    int       `json:"times_applied"`
	LastUsed        time.Time `json:"last_used"`
	RollingSuccess  float64   `json:"rolling_success_rate"`
}

// RecordApplication folds one more application outcome into the rolling
// success rate (simple incremental mean) and bumps TimesApplied.
func (p *PatternEffectiveness) RecordApplication(success bool) {
	p.TimesApplied++
	var obs float64
	if success {
		obs = 1
	}
	p.RollingSuccess += (obs - p.RollingSuccess) / float64(p.TimesApplied)
	p.LastUsed = time.Now().UTC()
}

// Pattern is a reusable structure mined from one or more episodes. Only
// the fields relevant to Kind are populated:
//
//   - PatternToolSequence:  Tools, Context, SuccessRate, AvgLatencyMs, OccurrenceCount
//   - PatternDecisionPoint: Condition, Action, OutcomeStats, Context
//   - PatternErrorRecovery: ErrorType, RecoverySteps, Context, SuccessRate
//   - PatternContext:       Features, RecommendedApproach, EvidenceEpisodeIDs, SuccessRate
type Pattern struct {
	ID   uuid.UUID   `json:"id"`
	Kind PatternKind `json:"kind"`

	// ToolSequence
	Tools           []string    `json:"tools,omitempty"`
	AvgLatencyMs    int64       `json:"avg_latency_ms,omitempty"`
	OccurrenceCount int         `json:"occurrence_count,omitempty"`

	// DecisionPoint
	Condition    string       `json:"condition,omitempty"`
	Action       string       `json:"action,omitempty"`
	OutcomeStats OutcomeStats `json:"outcome_stats,omitempty"`

	// ErrorRecovery
	ErrorType     string   `json:"error_type,omitempty"`
	RecoverySteps []string `json:"recovery_steps,omitempty"`

	// ContextPattern
	Features            []string    `json:"features,omitempty"`
	RecommendedApproach string      `json:"recommended_approach,omitempty"`
	EvidenceEpisodeIDs  []uuid.UUID `json:"evidence_episode_ids,omitempty"`

	// Shared
	Context       TaskContext          `json:"context"`
	SuccessRate   float64              `json:"success_rate"`
	Effectiveness PatternEffectiveness `json:"effectiveness"`
}

// Validate checks the pattern invariants: success_rate in [0,1] for every
// kind, and occurrence_count >= 1 for ToolSequence patterns only; the
// occurrence_count of other kinds is not checked.
func (p Pattern) Validate() error {
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		return errInvalid("pattern success_rate %.4f out of [0,1]", p.SuccessRate)
	}
	if p.Kind == PatternToolSequence && p.OccurrenceCount < 1 {
		return errInvalid("pattern occurrence_count must be >= 1")
	}
	return nil
}

// StructuralKey returns the key used to decide whether two patterns of
// the same kind represent the same underlying structure, for
// merge-on-write in the storage layer.
func (p Pattern) StructuralKey() string {
	switch p.Kind {
	case PatternToolSequence:
		return joinKey(p.Tools)
	case PatternDecisionPoint:
		return p.Condition + "\x00" + p.Action
	case PatternErrorRecovery:
		return p.ErrorType
	case PatternContext:
		return joinKey(p.Features)
	default:
		return ""
	}
}

func joinKey(parts []string) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += "\x1f"
		}
		key += p
	}
	return key
}
