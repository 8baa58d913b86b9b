package retrieval

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/selfmemory/engine/internal/memerr"
	"github.com/selfmemory/engine/internal/model"
)

// SearchMode selects how a text query is matched against episode
// fields: exact substring, similarity-threshold fuzzy, or a validated
// regular expression.
type SearchMode struct {
	Kind      SearchModeKind
	Threshold float64 // only meaningful for SearchModeFuzzy
}

// SearchModeKind discriminates SearchMode's variant.
type SearchModeKind string

const (
	SearchModeExact SearchModeKind = "exact"
	SearchModeFuzzy SearchModeKind = "fuzzy"
	SearchModeRegex SearchModeKind = "regex"
)

// Validate checks SearchMode invariants: a fuzzy threshold must be in
// [0,1].
func (m SearchMode) Validate() error {
	if m.Kind == SearchModeFuzzy && (m.Threshold < 0 || m.Threshold > 1) {
		return memerr.New(memerr.KindValidation, "fuzzy search threshold %.2f must be in [0,1]", m.Threshold)
	}
	return nil
}

// SearchField selects which episode field(s) participate in a text
// search, each carrying a fixed ranking weight.
type SearchField string

const (
	FieldDescription SearchField = "description"
	FieldSteps       SearchField = "steps"
	FieldOutcome     SearchField = "outcome"
	FieldTags        SearchField = "tags"
	FieldDomain      SearchField = "domain"
	FieldAll         SearchField = "all"
)

// Weight returns the field's relative ranking contribution.
func (f SearchField) Weight() float64 {
	switch f {
	case FieldDescription:
		return 1.0
	case FieldOutcome:
		return 0.8
	case FieldSteps:
		return 0.6
	case FieldTags:
		return 0.5
	case FieldDomain:
		return 0.4
	case FieldAll:
		return 0.7
	default:
		return 0.5
	}
}

// maxPatternLength and maxQuantifierNesting bound regex patterns before
// compilation to reject catastrophic-backtracking shapes.
const (
	maxPatternLength     = 256
	maxQuantifierNesting = 3
)

// CompileSafeRegex validates pattern against a bounded length and
// quantifier-nesting depth before compiling it, rejecting shapes prone
// to catastrophic backtracking.
func CompileSafeRegex(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > maxPatternLength {
		return nil, memerr.New(memerr.KindInvalidRegex, "regex pattern exceeds max length %d", maxPatternLength)
	}
	if depth := quantifierNestingDepth(pattern); depth > maxQuantifierNesting {
		return nil, memerr.New(memerr.KindInvalidRegex, "regex pattern nests quantifiers %d deep (max %d)", depth, maxQuantifierNesting)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindInvalidRegex, err, "compile regex %q", pattern)
	}
	return re, nil
}

// quantifierNestingDepth estimates how deeply quantifiers
// (*, +, ?, {n,m}) are nested inside grouping parens, a cheap proxy for
// the repeated-group shapes that cause exponential regex backtracking.
func quantifierNestingDepth(pattern string) int {
	depth, maxDepth := 0, 0
	groupHasQuantifier := make([]bool, 0, 8)
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '(':
			depth++
			groupHasQuantifier = append(groupHasQuantifier, false)
		case ')':
			if depth > 0 {
				depth--
			}
			if len(groupHasQuantifier) > 0 {
				groupHasQuantifier = groupHasQuantifier[:len(groupHasQuantifier)-1]
			}
		case '*', '+', '?', '{':
			nested := 0
			for range groupHasQuantifier {
				nested++
			}
			if nested > maxDepth {
				maxDepth = nested
			}
			for j := range groupHasQuantifier {
				groupHasQuantifier[j] = true
			}
		}
	}
	return maxDepth
}

// MatchField reports whether query matches the given field text under
// mode, and a [0,1] similarity score for ranking.
func MatchField(mode SearchMode, query, text string) (matched bool, score float64) {
	switch mode.Kind {
	case SearchModeRegex:
		re, err := CompileSafeRegex(query)
		if err != nil {
			return false, 0
		}
		if re.MatchString(text) {
			return true, 1.0
		}
		return false, 0
	case SearchModeFuzzy:
		if mode.Threshold >= 1.0 {
			// A threshold of 1.0 means exact match required: the
			// per-word normalized score can fall short of 1.0 even when
			// query is a literal substring of text (extra words in text
			// dilute the average), so the boundary falls back to the
			// same substring check SearchModeExact uses.
			if strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
				return true, 1.0
			}
			return false, 0
		}
		score = FuzzyTextSimilarity(query, text)
		return score >= mode.Threshold, score
	default: // SearchModeExact
		if strings.Contains(strings.ToLower(text), strings.ToLower(query)) {
			return true, 1.0
		}
		return false, 0
	}
}

// fieldText extracts the text of one field from an episode for search
// purposes.
func fieldText(ep *model.Episode, field SearchField) string {
	switch field {
	case FieldDescription:
		return ep.Description
	case FieldSteps:
		var b strings.Builder
		for _, s := range ep.Steps {
			fmt.Fprintf(&b, "%s %s ", s.Tool, s.Action)
		}
		return b.String()
	case FieldOutcome:
		if ep.Outcome == nil {
			return ""
		}
		return ep.Outcome.Verdict + " " + ep.Outcome.Reason
	case FieldTags:
		return strings.Join(ep.GetTags(), " ")
	case FieldDomain:
		return ep.Context.Domain
	default:
		return ep.Description
	}
}

// Search runs a text query against a set of episodes over the given
// fields (FieldAll expands to every field), returning matches sorted by
// weighted score descending.
func Search(episodes []*model.Episode, query string, mode SearchMode, fields []SearchField) ([]*model.Episode, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if mode.Kind == SearchModeRegex {
		if _, err := CompileSafeRegex(query); err != nil {
			return nil, err
		}
	}
	if len(fields) == 0 || containsField(fields, FieldAll) {
		fields = []SearchField{FieldDescription, FieldSteps, FieldOutcome, FieldTags, FieldDomain}
	}

	type scored struct {
		ep    *model.Episode
		score float64
	}
	var results []scored
	for _, ep := range episodes {
		var best float64
		var matched bool
		for _, f := range fields {
			ok, score := MatchField(mode, query, fieldText(ep, f))
			if !ok {
				continue
			}
			matched = true
			weighted := score * f.Weight()
			if weighted > best {
				best = weighted
			}
		}
		if matched {
			results = append(results, scored{ep: ep, score: best})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	out := make([]*model.Episode, len(results))
	for i := range results {
		out[i] = results[i].ep
	}
	return out, nil
}

func containsField(fields []SearchField, target SearchField) bool {
	for _, f := range fields {
		if f == target {
			return true
		}
	}
	return false
}
