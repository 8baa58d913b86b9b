// Package extraction implements the pattern and heuristic extractors
// described in SPEC_FULL.md §4.7: four pure Episode->[]Pattern
// extractors (ToolSequence, DecisionPoint, ErrorRecovery, ContextPattern),
// a heuristic extractor over decision steps, and the merge-on-write logic
// that folds freshly extracted patterns into whatever already exists in
// storage.
package extraction

// Config tunes the extractors' thresholds, all named in spec.md §4.7.
type Config struct {
	MinSequenceLen            int
	MaxSequenceLen            int
	SuccessThreshold          float64
	ErrorRecoveryMinSuccess   float64
	MinHeuristicConfidence    float64
	MinHeuristicSampleSize    int
}

// DefaultConfig returns the §4.7 defaults.
func DefaultConfig() Config {
	return Config{
		MinSequenceLen:          2,
		MaxSequenceLen:          5,
		SuccessThreshold:        0.7,
		ErrorRecoveryMinSuccess: 0.3,
		MinHeuristicConfidence:  0.1,
		MinHeuristicSampleSize:  1,
	}
}

var decisionKeywords = []string{"if", "when", "check", "verify", "validate", "ensure", "decide", "determine"}
