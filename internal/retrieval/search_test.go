package retrieval

import (
	"strings"
	"testing"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

func newSearchEpisode(desc, domain string) *model.Episode {
	ctx := model.DefaultTaskContext()
	ctx.Domain = domain
	ep := model.NewEpisode(desc, ctx, model.TaskDebugging)
	ep.AddStep(model.NewStep(1, "grep", "search for the error string"))
	ep.SetTags([]string{"urgent", "customer-reported"})
	return ep
}

func TestSearchExactModeMatchesSubstring(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("fix invoice rounding error", "billing"),
		newSearchEpisode("optimize search ranking", "search"),
	}
	results, err := Search(episodes, "invoice", SearchMode{Kind: SearchModeExact}, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Description, "invoice") {
		t.Fatalf("expected exactly one invoice match, got %+v", results)
	}
}

func TestSearchFuzzyModeRespectsThreshold(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("fix invoice rounding error in billing module", "billing"),
	}
	mode := SearchMode{Kind: SearchModeFuzzy, Threshold: 0.9}
	results, err := Search(episodes, "invoice rounding", mode, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected high threshold to exclude partial overlap, got %+v", results)
	}

	mode.Threshold = 0.2
	results, err = Search(episodes, "invoice rounding", mode, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected low threshold to include partial overlap, got %+v", results)
	}
}

func TestSearchFuzzyThresholdOneEquivalentToExactMatch(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("fix invoice error", "billing"),
	}
	exact, err := Search(episodes, "invoice", SearchMode{Kind: SearchModeExact}, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fuzzy, err := Search(episodes, "invoice", SearchMode{Kind: SearchModeFuzzy, Threshold: 1.0}, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exact) != 1 || len(fuzzy) != 1 {
		t.Fatalf("expected exact and fuzzy@1.0 to agree, got exact=%+v fuzzy=%+v", exact, fuzzy)
	}
}

func TestSearchFuzzyModeRejectsInvalidThreshold(t *testing.T) {
	_, err := Search(nil, "x", SearchMode{Kind: SearchModeFuzzy, Threshold: 1.5}, nil)
	if err == nil {
		t.Fatal("expected validation error for out-of-range threshold")
	}
}

func TestSearchRegexModeMatches(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("fix invoice #1234 rounding error", "billing"),
	}
	results, err := Search(episodes, `invoice #\d+`, SearchMode{Kind: SearchModeRegex}, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected regex match, got %+v", results)
	}
}

func TestSearchRegexModeRejectsOverlongPattern(t *testing.T) {
	_, err := CompileSafeRegex(strings.Repeat("a", maxPatternLength+1))
	if err == nil {
		t.Fatal("expected overlong pattern to be rejected")
	}
}

func TestSearchRegexModeRejectsDeeplyNestedQuantifiers(t *testing.T) {
	_, err := CompileSafeRegex(`((((a+)+)+)+)+`)
	if err == nil {
		t.Fatal("expected deeply nested quantifiers to be rejected")
	}
}

func TestSearchRegexModeReturnsInvalidRegexError(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("fix invoice rounding error", "billing"),
	}
	_, err := Search(episodes, strings.Repeat("a", maxPatternLength+1), SearchMode{Kind: SearchModeRegex}, []SearchField{FieldDescription})
	if err == nil {
		t.Fatal("expected Search to reject an overlong regex pattern instead of silently returning no matches")
	}
	if !memerr.Is(err, memerr.KindInvalidRegex) {
		t.Fatalf("expected KindInvalidRegex, got %v", err)
	}
}

func TestSearchFieldAllExpandsToEveryField(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("unrelated description", "billing"),
	}
	results, err := Search(episodes, "urgent", SearchMode{Kind: SearchModeExact}, []SearchField{FieldAll})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected FieldAll to search tags too, got %+v", results)
	}
}

func TestSearchSortsByWeightedScoreDescending(t *testing.T) {
	episodes := []*model.Episode{
		newSearchEpisode("generic task about invoice", "billing"),
		newSearchEpisode("invoice invoice invoice", "billing"),
	}
	results, err := Search(episodes, "invoice", SearchMode{Kind: SearchModeFuzzy, Threshold: 0.1}, []SearchField{FieldDescription})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Description != "invoice invoice invoice" {
		t.Fatalf("expected the denser match ranked first, got %+v", results)
	}
}
