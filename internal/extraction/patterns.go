package extraction

import (
	"strings"

	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
)

// ExtractPatterns runs all four pure extractors over ep and returns
// their combined output. Each extractor independently decides whether
// it has anything to contribute; merging the results into storage
// (occurrence_count, rolling success rate) happens separately via Merge.
func ExtractPatterns(ep *model.Episode, cfg Config) []model.Pattern {
	var out []model.Pattern
	out = append(out, extractToolSequence(ep, cfg)...)
	out = append(out, extractDecisionPoints(ep, cfg)...)
	out = append(out, extractErrorRecovery(ep, cfg)...)
	out = append(out, extractContextPattern(ep, cfg)...)
	return out
}

func extractToolSequence(ep *model.Episode, cfg Config) []model.Pattern {
	if len(ep.Steps) < cfg.MinSequenceLen {
		return nil
	}
	if ep.StepSuccessRate() < cfg.SuccessThreshold {
		return nil
	}

	n := cfg.MaxSequenceLen
	if n > len(ep.Steps) {
		n = len(ep.Steps)
	}
	tools := make([]string, 0, n)
	var totalLatency int64
	for i := 0; i < n; i++ {
		tools = append(tools, ep.Steps[i].Tool)
		totalLatency += ep.Steps[i].LatencyMs
	}

	return []model.Pattern{{
		Kind:            model.PatternToolSequence,
		Tools:           tools,
		AvgLatencyMs:    totalLatency / int64(n),
		OccurrenceCount: 1,
		Context:         ep.Context,
		SuccessRate:     ep.StepSuccessRate(),
	}}
}

func extractDecisionPoints(ep *model.Episode, cfg Config) []model.Pattern {
	var out []model.Pattern
	for _, s := range ep.Steps {
		if !s.IsSuccessful() || !containsDecisionKeyword(s.Action) {
			continue
		}
		stats := model.OutcomeStats{}
		stats.RecordOutcome(true, float64(s.LatencyMs)/1000.0)
		out = append(out, model.Pattern{
			Kind:         model.PatternDecisionPoint,
			Condition:    s.Action,
			Action:       s.Tool,
			OutcomeStats: stats,
			Context:      ep.Context,
			SuccessRate:  1.0,
		})
	}
	return out
}

func containsDecisionKeyword(action string) bool {
	lower := strings.ToLower(action)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool { return !('a' <= r && r <= 'z') }) {
		for _, kw := range decisionKeywords {
			if word == kw {
				return true
			}
		}
	}
	return false
}

func extractErrorRecovery(ep *model.Episode, cfg Config) []model.Pattern {
	if ep.StepSuccessRate() < cfg.ErrorRecoveryMinSuccess {
		return nil
	}

	var out []model.Pattern
	steps := ep.Steps
	for i := 0; i < len(steps); i++ {
		s := steps[i]
		if s.Result == nil || s.Result.IsSuccess() {
			continue
		}
		errType := classifyError(s.Result.Message)

		var recovery []string
		j := i + 1
		for ; j < len(steps); j++ {
			next := steps[j]
			if next.Result == nil || !next.Result.IsSuccess() {
				break
			}
			recovery = append(recovery, next.Tool+": "+next.Action)
		}
		if len(recovery) > 0 {
			out = append(out, model.Pattern{
				Kind:          model.PatternErrorRecovery,
				ErrorType:     errType,
				RecoverySteps: recovery,
				Context:       ep.Context,
				SuccessRate:   1.0,
			})
		}
		i = j - 1
	}
	return out
}

// classifyError derives a short error type label from a raw error
// message: the text before the first colon, or the whole message if
// there is none.
func classifyError(message string) string {
	if idx := strings.Index(message, ":"); idx > 0 {
		return strings.TrimSpace(message[:idx])
	}
	return strings.TrimSpace(message)
}

func extractContextPattern(ep *model.Episode, cfg Config) []model.Pattern {
	qualifies := ep.StepSuccessRate() >= cfg.SuccessThreshold
	if !qualifies && len(ep.Steps) == 0 && ep.Reward != nil && ep.Reward.Total > 0 {
		qualifies = true
	}
	if !qualifies {
		return nil
	}

	return []model.Pattern{{
		Kind:                model.PatternContext,
		Features:            ep.Context.Features(),
		RecommendedApproach: string(ep.TaskType),
		EvidenceEpisodeIDs:  []uuid.UUID{ep.ID},
		Context:             ep.Context,
		SuccessRate:         ep.StepSuccessRate(),
	}}
}
