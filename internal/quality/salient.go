package quality

import (
	"fmt"

	"github.com/selfmemory/engine/internal/model"
)

// SalientConfig bounds how many items the extractor keeps per category.
type SalientConfig struct {
	MaxDecisions int
	MaxInsights  int
	MaxFailures  int
}

// DefaultSalientConfig caps every category at 5 entries.
func DefaultSalientConfig() SalientConfig {
	return SalientConfig{MaxDecisions: 5, MaxInsights: 5, MaxFailures: 5}
}

// ExtractSalientFeatures derives the compact SalientFeatures summary
// for an episode that passed the quality gate: the most consequential
// decisions, key insights, observed failure modes, and peak resource
// usage across its steps.
func ExtractSalientFeatures(ep *model.Episode, cfg SalientConfig) *model.SalientFeatures {
	var decisions, insights, failures []string
	var usage model.ResourceUsage

	seenTools := make(map[string]bool)
	for _, step := range ep.Steps {
		usage.TotalLatencyMs += step.LatencyMs
		if step.LatencyMs > usage.MaxLatencyMs {
			usage.MaxLatencyMs = step.LatencyMs
		}
		if step.TokenCount != nil {
			usage.TotalTokens += *step.TokenCount
		}

		if step.Result == nil {
			continue
		}
		switch step.Result.Kind {
		case model.ResultSuccess:
			if !seenTools[step.Tool] && len(decisions) < cfg.MaxDecisions {
				decisions = append(decisions, fmt.Sprintf("step %d: %s via %s", step.StepNumber, step.Action, step.Tool))
			}
		case model.ResultError:
			if len(failures) < cfg.MaxFailures {
				failures = append(failures, fmt.Sprintf("step %d: %s failed: %s", step.StepNumber, step.Tool, step.Result.Message))
			}
		case model.ResultTimeout:
			if len(failures) < cfg.MaxFailures {
				failures = append(failures, fmt.Sprintf("step %d: %s timed out", step.StepNumber, step.Tool))
			}
		}
		seenTools[step.Tool] = true
	}

	if ep.Outcome != nil && len(insights) < cfg.MaxInsights {
		insights = append(insights, outcomeInsight(ep.Outcome))
	}
	if reused := mostReusedTool(ep); reused != "" && len(insights) < cfg.MaxInsights {
		insights = append(insights, fmt.Sprintf("tool %q was reused across the episode", reused))
	}

	return &model.SalientFeatures{
		CriticalDecisions: decisions,
		KeyInsights:       insights,
		FailureModes:      failures,
		ResourceUsage:     usage,
	}
}

func outcomeInsight(o *model.TaskOutcome) string {
	switch o.Kind {
	case model.OutcomeSuccess:
		return "episode completed successfully: " + o.Verdict
	case model.OutcomePartialSuccess:
		return fmt.Sprintf("partial success: %d completed, %d failed", len(o.Completed), len(o.Failed))
	default:
		return "episode failed: " + o.Reason
	}
}

func mostReusedTool(ep *model.Episode) string {
	counts := make(map[string]int)
	for _, s := range ep.Steps {
		counts[s.Tool]++
	}
	best, bestCount := "", 1
	for tool, n := range counts {
		if n > bestCount {
			best, bestCount = tool, n
		}
	}
	return best
}
