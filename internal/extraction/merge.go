package extraction

import "github.com/selfmemory/engine/internal/model"

// Merge folds a freshly extracted pattern into an existing pattern of
// the same structural kind: increments occurrence_count, updates the
// rolling success_rate and avg_latency as incremental means, and
// refreshes last_used. existing is mutated in place and returned.
func Merge(existing *model.Pattern, incoming model.Pattern) *model.Pattern {
	existing.OccurrenceCount++
	n := float64(existing.OccurrenceCount)

	existing.SuccessRate += (incoming.SuccessRate - existing.SuccessRate) / n
	if existing.Kind == model.PatternToolSequence {
		existing.AvgLatencyMs += (incoming.AvgLatencyMs - existing.AvgLatencyMs) / int64(n)
	}

	switch existing.Kind {
	case model.PatternErrorRecovery:
		existing.RecoverySteps = incoming.RecoverySteps
	case model.PatternContext:
		existing.EvidenceEpisodeIDs = append(existing.EvidenceEpisodeIDs, incoming.EvidenceEpisodeIDs...)
	case model.PatternDecisionPoint:
		existing.OutcomeStats.SuccessCount += incoming.OutcomeStats.SuccessCount
		existing.OutcomeStats.FailureCount += incoming.OutcomeStats.FailureCount
		existing.OutcomeStats.TotalCount += incoming.OutcomeStats.TotalCount
	}

	existing.Effectiveness.RecordApplication(incoming.SuccessRate >= 0.5)
	return existing
}
