package model

import "time"

// ResultKind discriminates the outcome of a single execution step.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultError   ResultKind = "error"
	ResultTimeout ResultKind = "timeout"
)

// ExecutionResult is the tagged result of one tool invocation. Only the
// fields relevant to Kind are populated: Output for ResultSuccess,
// Message for ResultError, neither for ResultTimeout.
type ExecutionResult struct {
	Kind    ResultKind `json:"kind"`
	Output  string     `json:"output,omitempty"`
	Message string     `json:"message,omitempty"`
}

// NewSuccessResult builds a successful ExecutionResult.
func NewSuccessResult(output string) ExecutionResult {
	return ExecutionResult{Kind: ResultSuccess, Output: output}
}

// NewErrorResult builds a failed ExecutionResult.
func NewErrorResult(message string) ExecutionResult {
	return ExecutionResult{Kind: ResultError, Message: message}
}

// NewTimeoutResult builds a timed-out ExecutionResult.
func NewTimeoutResult() ExecutionResult {
	return ExecutionResult{Kind: ResultTimeout}
}

// IsSuccess reports whether the step succeeded.
func (r ExecutionResult) IsSuccess() bool {
	return r.Kind == ResultSuccess
}

// OutcomeKind discriminates the final outcome of an episode.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeFailure        OutcomeKind = "failure"
)

// TaskOutcome is the tagged result of a completed episode.
//
//   - OutcomeSuccess:        Verdict, Artifacts
//   - OutcomePartialSuccess: Verdict, Completed, Failed
//   - OutcomeFailure:        Reason, ErrorDetails
type TaskOutcome struct {
	Kind         OutcomeKind `json:"kind"`
	Verdict      string      `json:"verdict,omitempty"`
	Artifacts    []string    `json:"artifacts,omitempty"`
	Completed    []string    `json:"completed,omitempty"`
	Failed       []string    `json:"failed,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	ErrorDetails string      `json:"error_details,omitempty"`
}

// NewSuccessOutcome builds a successful TaskOutcome.
func NewSuccessOutcome(verdict string, artifacts []string) TaskOutcome {
	return TaskOutcome{Kind: OutcomeSuccess, Verdict: verdict, Artifacts: artifacts}
}

// NewPartialSuccessOutcome builds a partial-success TaskOutcome.
func NewPartialSuccessOutcome(verdict string, completed, failed []string) TaskOutcome {
	return TaskOutcome{Kind: OutcomePartialSuccess, Verdict: verdict, Completed: completed, Failed: failed}
}

// NewFailureOutcome builds a failure TaskOutcome.
func NewFailureOutcome(reason, errorDetails string) TaskOutcome {
	return TaskOutcome{Kind: OutcomeFailure, Reason: reason, ErrorDetails: errorDetails}
}

// IsSuccess reports whether the outcome is an unqualified success.
func (o TaskOutcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// PartialSuccessRate returns completed/(completed+failed) for a
// PartialSuccess outcome, or 1.0/0.0 for Success/Failure respectively.
func (o TaskOutcome) PartialSuccessRate() float64 {
	switch o.Kind {
	case OutcomeSuccess:
		return 1.0
	case OutcomeFailure:
		return 0.0
	case OutcomePartialSuccess:
		total := len(o.Completed) + len(o.Failed)
		if total == 0 {
			return 0.5
		}
		return float64(len(o.Completed)) / float64(total)
	default:
		return 0.0
	}
}

// RewardScore is the decomposed reward for a completed episode.
type RewardScore struct {
	Total             float64 `json:"total"`
	Base              float64 `json:"base"`
	Efficiency        float64 `json:"efficiency"`
	ComplexityBonus   float64 `json:"complexity_bonus"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	LearningBonus     float64 `json:"learning_bonus"`
}

// Reflection is the structured self-assessment generated at episode
// completion: what worked, what could improve, and insights gathered.
type Reflection struct {
	Successes    []string  `json:"successes"`
	Improvements []string  `json:"improvements"`
	Insights     []string  `json:"insights"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// OutcomeStats summarizes the historical success/failure record backing a
// DecisionPoint pattern.
type OutcomeStats struct {
	SuccessCount     int     `json:"success_count"`
	FailureCount     int     `json:"failure_count"`
	TotalCount       int     `json:"total_count"`
	AvgDurationSecs  float64 `json:"avg_duration_secs"`
}

// SuccessRate returns SuccessCount/TotalCount, or 0 if TotalCount is 0.
func (s OutcomeStats) SuccessRate() float64 {
	if s.TotalCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalCount)
}

// RecordOutcome folds one more observation into the running stats.
func (s *OutcomeStats) RecordOutcome(success bool, durationSecs float64) {
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	s.TotalCount++
	// incremental mean
	s.AvgDurationSecs += (durationSecs - s.AvgDurationSecs) / float64(s.TotalCount)
}

// SalientFeatures is the compact summary of the most informative moments
// in an episode, populated by the quality gate's salient-feature
// extractor for episodes that pass the gate.
type SalientFeatures struct {
	CriticalDecisions []string      `json:"critical_decisions"`
	KeyInsights       []string      `json:"key_insights"`
	FailureModes      []string      `json:"failure_modes"`
	ResourceUsage     ResourceUsage `json:"resource_usage"`
}

// ResourceUsage is the peak memory/time observed while executing an
// episode's steps, as reported by the caller via step token counts and
// latencies (the engine never measures the host process directly).
type ResourceUsage struct {
	MaxLatencyMs  int64 `json:"max_latency_ms"`
	TotalTokens   int64 `json:"total_tokens"`
	TotalLatencyMs int64 `json:"total_latency_ms"`
}
