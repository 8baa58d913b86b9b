package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/selfmemory/engine/internal/model"
	"github.com/selfmemory/engine/internal/retrieval"
)

// RetrieveRelevantContext finds episodes relevant to a prospective task
// by running the hierarchical spatiotemporal retriever against the
// task's description embedding. Identical concurrent queries (same
// description, context and limit) are coalesced via singleflight so a
// burst of requests for the same task only computes one embedding and
// one retrieval pass.
func (m *SelfLearningMemory) RetrieveRelevantContext(ctx context.Context, description string, taskCtx model.TaskContext, limit int) ([]retrieval.Result, error) {
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d", description, taskCtx.Domain, taskCtx.Framework, limit)

	v, err, _ := m.retrievalGroup.Do(key, func() (any, error) {
		q := retrieval.Query{
			Domain:      taskCtx.Domain,
			TaskType:    "",
			Description: description,
			Limit:       limit,
		}
		if vec, embErr := m.embeddings.Embed(ctx, description); embErr == nil {
			q.Embedding = make(model.Embedding, len(vec))
			for i, f := range vec {
				q.Embedding[i] = f
			}
		}
		return m.retriever.Retrieve(ctx, q), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]retrieval.Result), nil
}

// RetrieveRelevantPatterns ranks stored patterns against taskCtx by
// feature overlap and track record, most relevant first.
func (m *SelfLearningMemory) RetrieveRelevantPatterns(ctx context.Context, taskCtx model.TaskContext, limit int) ([]*model.Pattern, error) {
	patterns, err := m.durableStore.ListPatterns(ctx, allEpisodesLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		pattern *model.Pattern
		score   float64
	}
	ranked := make([]scored, 0, len(patterns))
	targetFeatures := taskCtx.Features()
	for _, p := range patterns {
		overlap := retrieval.JaccardSimilarity(targetFeatures, p.Context.Features())
		score := 0.5*overlap + 0.3*p.SuccessRate + 0.2*p.Effectiveness.RollingSuccess
		ranked = append(ranked, scored{p, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	return topPatterns(ranked, limit, func(s scored) *model.Pattern { return s.pattern }), nil
}

// SearchPatternsSemantic finds patterns whose condition, action,
// recommended approach or tool list resembles query, scoped further by
// context feature overlap with taskCtx.
func (m *SelfLearningMemory) SearchPatternsSemantic(ctx context.Context, query string, taskCtx model.TaskContext, limit int) ([]*model.Pattern, error) {
	patterns, err := m.durableStore.ListPatterns(ctx, allEpisodesLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		pattern *model.Pattern
		score   float64
	}
	targetFeatures := taskCtx.Features()
	ranked := make([]scored, 0, len(patterns))
	for _, p := range patterns {
		text := strings.Join([]string{p.Condition, p.Action, p.RecommendedApproach, strings.Join(p.Tools, " ")}, " ")
		textScore := retrieval.WordOverlapSimilarity(query, text)
		contextScore := retrieval.JaccardSimilarity(targetFeatures, p.Context.Features())
		score := 0.7*textScore + 0.3*contextScore
		if score <= 0 {
			continue
		}
		ranked = append(ranked, scored{p, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	return topPatterns(ranked, limit, func(s scored) *model.Pattern { return s.pattern }), nil
}

// RecommendPatternsForTask blends description similarity with context
// feature overlap, for the common case of recommending patterns before
// a task even starts (no prior episode to compare against, only a plan).
func (m *SelfLearningMemory) RecommendPatternsForTask(ctx context.Context, description string, taskCtx model.TaskContext, limit int) ([]*model.Pattern, error) {
	patterns, err := m.durableStore.ListPatterns(ctx, allEpisodesLimit)
	if err != nil {
		return nil, err
	}

	type scored struct {
		pattern *model.Pattern
		score   float64
	}
	targetFeatures := taskCtx.Features()
	ranked := make([]scored, 0, len(patterns))
	for _, p := range patterns {
		descScore := retrieval.WordOverlapSimilarity(description, p.RecommendedApproach+" "+p.Action)
		contextScore := retrieval.JaccardSimilarity(targetFeatures, p.Context.Features())
		score := 0.4*descScore + 0.4*contextScore + 0.2*p.Effectiveness.RollingSuccess
		ranked = append(ranked, scored{p, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	return topPatterns(ranked, limit, func(s scored) *model.Pattern { return s.pattern }), nil
}

// DiscoverAnalogousPatterns finds patterns mined in sourceDomain whose
// non-domain features (task type, language, framework, complexity,
// tags) resemble targetCtx, the way a cross-domain analogy is "same
// shape of problem, different subject matter." The domain feature
// itself is excluded from the overlap score on both sides since the
// domains are expected to differ.
func (m *SelfLearningMemory) DiscoverAnalogousPatterns(ctx context.Context, sourceDomain string, targetCtx model.TaskContext, limit int) ([]*model.Pattern, error) {
	patterns, err := m.durableStore.ListPatterns(ctx, allEpisodesLimit)
	if err != nil {
		return nil, err
	}

	targetFeatures := stripDomainFeature(targetCtx.Features())

	type scored struct {
		pattern *model.Pattern
		score   float64
	}
	ranked := make([]scored, 0, len(patterns))
	for _, p := range patterns {
		if p.Context.Domain != sourceDomain {
			continue
		}
		score := retrieval.JaccardSimilarity(targetFeatures, stripDomainFeature(p.Context.Features()))
		if score <= 0 {
			continue
		}
		ranked = append(ranked, scored{p, score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	return topPatterns(ranked, limit, func(s scored) *model.Pattern { return s.pattern }), nil
}

func stripDomainFeature(features []string) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if strings.HasPrefix(f, "domain:") {
			continue
		}
		out = append(out, f)
	}
	return out
}

func topPatterns[T any](ranked []T, limit int, get func(T) *model.Pattern) []*model.Pattern {
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]*model.Pattern, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, get(r))
	}
	return out
}
