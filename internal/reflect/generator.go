// Package reflect implements the reflection generator described in
// SPEC_FULL.md §4.6: three bounded lists of successes, improvements and
// insights, derived purely from step inspection rather than an LLM call.
package reflect

import (
	"fmt"
	"time"

	"github.com/selfmemory/engine/internal/model"
)

// Config bounds the number of items kept per reflection category and
// the latency threshold used to flag long-running steps.
type Config struct {
	MaxPerCategory      int
	LongLatencyMs       int64
}

// DefaultConfig caps every category at 5 entries, matching spec.md
// §4.6, and flags steps over 10s as latency outliers.
func DefaultConfig() Config {
	return Config{MaxPerCategory: 5, LongLatencyMs: 10_000}
}

// Generator produces a Reflection by inspecting a completed episode's
// step sequence.
type Generator struct {
	cfg Config
}

// New builds a Generator with the given config.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Generate builds the bounded Successes/Improvements/Insights lists for
// ep: successes from consecutive successful steps tied to outcome
// artifacts, improvements from failed-step patterns and long-latency
// outliers, insights from tool-reuse and error recoveries.
func (g *Generator) Generate(ep *model.Episode) model.Reflection {
	return model.Reflection{
		Successes:    g.successes(ep),
		Improvements: g.improvements(ep),
		Insights:     g.insights(ep),
		GeneratedAt:  time.Now().UTC(),
	}
}

func (g *Generator) successes(ep *model.Episode) []string {
	var out []string
	streak := 0
	for _, s := range ep.Steps {
		if s.IsSuccessful() {
			streak++
			continue
		}
		if streak >= 2 {
			out = appendBounded(out, fmt.Sprintf("%d consecutive successful steps ending before step %d", streak, s.StepNumber), g.cfg.MaxPerCategory)
		}
		streak = 0
	}
	if streak >= 2 {
		out = appendBounded(out, fmt.Sprintf("%d consecutive successful steps to completion", streak), g.cfg.MaxPerCategory)
	}
	if ep.Outcome != nil && ep.Outcome.IsSuccess() && len(ep.Outcome.Artifacts) > 0 {
		out = appendBounded(out, fmt.Sprintf("produced %d artifact(s): %v", len(ep.Outcome.Artifacts), ep.Outcome.Artifacts), g.cfg.MaxPerCategory)
	}
	return out
}

func (g *Generator) improvements(ep *model.Episode) []string {
	var out []string
	failuresByTool := make(map[string]int)
	for _, s := range ep.Steps {
		if s.Result == nil {
			continue
		}
		if !s.Result.IsSuccess() {
			failuresByTool[s.Tool]++
		}
		if s.LatencyMs >= g.cfg.LongLatencyMs {
			out = appendBounded(out, fmt.Sprintf("step %d (%s) took %dms, an outlier latency", s.StepNumber, s.Tool, s.LatencyMs), g.cfg.MaxPerCategory)
		}
	}
	for tool, n := range failuresByTool {
		if n >= 2 {
			out = appendBounded(out, fmt.Sprintf("tool %q failed %d times, consider an alternate approach", tool, n), g.cfg.MaxPerCategory)
		}
	}
	if ep.Outcome != nil && ep.Outcome.Kind == model.OutcomePartialSuccess && len(ep.Outcome.Failed) > 0 {
		out = appendBounded(out, fmt.Sprintf("left %d sub-task(s) incomplete: %v", len(ep.Outcome.Failed), ep.Outcome.Failed), g.cfg.MaxPerCategory)
	}
	return out
}

func (g *Generator) insights(ep *model.Episode) []string {
	var out []string
	counts := make(map[string]int)
	for _, s := range ep.Steps {
		counts[s.Tool]++
	}
	for tool, n := range counts {
		if n >= 3 {
			out = appendBounded(out, fmt.Sprintf("tool %q was reused %d times, a strong candidate for a reusable pattern", tool, n), g.cfg.MaxPerCategory)
		}
	}
	if recovered := recoveredTools(ep); len(recovered) > 0 {
		out = appendBounded(out, fmt.Sprintf("recovered from an earlier failure using: %v", recovered), g.cfg.MaxPerCategory)
	}
	return out
}

func recoveredTools(ep *model.Episode) []string {
	failed := make(map[string]bool)
	var recovered []string
	seen := make(map[string]bool)
	for _, s := range ep.Steps {
		if s.Result == nil {
			continue
		}
		if !s.Result.IsSuccess() {
			failed[s.Tool] = true
			continue
		}
		if failed[s.Tool] && !seen[s.Tool] {
			recovered = append(recovered, s.Tool)
			seen[s.Tool] = true
		}
	}
	return recovered
}

func appendBounded(list []string, item string, max int) []string {
	if len(list) >= max {
		return list
	}
	return append(list, item)
}
