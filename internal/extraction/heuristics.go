package extraction

import (
	"github.com/google/uuid"

	"github.com/selfmemory/engine/internal/model"
)

// ExtractHeuristics mines (condition, action) pairs from the decision
// steps of every successful episode in the batch, grouping identical
// pairs across the batch (sample_size is the group size) and skipping
// groups below the configured minimum confidence or sample size.
func ExtractHeuristics(episodes []*model.Episode, cfg Config) []model.Heuristic {
	groups := make(map[string]*accumulator)
	for _, ep := range episodes {
		if ep.Outcome == nil || !ep.Outcome.IsSuccess() {
			continue
		}
		for _, s := range ep.Steps {
			if !s.IsSuccessful() || !containsDecisionKeyword(s.Action) {
				continue
			}
			key := s.Action + "\x00" + s.Tool
			acc, ok := groups[key]
			if !ok {
				acc = &accumulator{condition: s.Action, action: s.Tool}
				groups[key] = acc
			}
			acc.episodeIDs = append(acc.episodeIDs, ep.ID)
			acc.successCount++
			acc.sampleSize++
		}
	}

	var out []model.Heuristic
	for _, acc := range groups {
		evidence := model.Evidence{
			EpisodeIDs:  acc.episodeIDs,
			SuccessRate: float64(acc.successCount) / float64(acc.sampleSize),
			SampleSize:  acc.sampleSize,
		}
		h := model.NewHeuristic(acc.condition, acc.action, evidence)
		if h.Confidence < cfg.MinHeuristicConfidence || evidence.SampleSize < cfg.MinHeuristicSampleSize {
			continue
		}
		out = append(out, h)
	}
	return out
}

type accumulator struct {
	condition, action string
	episodeIDs        []uuid.UUID
	successCount      int
	sampleSize        int
}
