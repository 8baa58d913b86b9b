package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExecutionStep is a single tool invocation within an episode.
type ExecutionStep struct {
	StepNumber int              `json:"step_number"`
	Tool       string           `json:"tool"`
	Action     string           `json:"action"`
	Params     string           `json:"params,omitempty"`
	Result     *ExecutionResult `json:"result,omitempty"`
	LatencyMs  int64            `json:"latency_ms"`
	TokenCount *int64           `json:"token_count,omitempty"`
}

// NewStep constructs a step with no result yet recorded.
func NewStep(stepNumber int, tool, action string) ExecutionStep {
	return ExecutionStep{StepNumber: stepNumber, Tool: tool, Action: action}
}

// IsSuccessful reports whether the step's result is a Success.
func (s ExecutionStep) IsSuccessful() bool {
	return s.Result != nil && s.Result.IsSuccess()
}

// Episode is a single agent task attempt: its context, ordered steps,
// optional outcome, reward, reflection, and the patterns/heuristics it
// contributed to or benefited from.
type Episode struct {
	ID          uuid.UUID         `json:"id"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Description string            `json:"description"`
	TaskType    TaskType          `json:"task_type"`
	Context     TaskContext       `json:"context"`
	Steps       []ExecutionStep   `json:"steps"`
	Outcome     *TaskOutcome      `json:"outcome,omitempty"`
	Reward      *RewardScore      `json:"reward,omitempty"`
	Reflection  *Reflection       `json:"reflection,omitempty"`

	ExtractedPatternIDs   []uuid.UUID `json:"extracted_pattern_ids,omitempty"`
	AppliedPatternIDs     []uuid.UUID `json:"applied_pattern_ids,omitempty"`
	ExtractedHeuristicIDs []uuid.UUID `json:"extracted_heuristic_ids,omitempty"`

	SalientFeatures *SalientFeatures  `json:"salient_features,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Tags            map[string]struct{} `json:"-"`
}

// NewEpisode creates a new, incomplete episode with a freshly generated id
// and start time set to now.
func NewEpisode(description string, context TaskContext, taskType TaskType) *Episode {
	return &Episode{
		ID:          uuid.New(),
		StartTime:   time.Now().UTC(),
		Description: description,
		TaskType:    taskType,
		Context:     context,
		Tags:        make(map[string]struct{}),
	}
}

// IsComplete reports whether the episode has a recorded outcome.
func (e *Episode) IsComplete() bool {
	return e.Outcome != nil
}

// Duration returns the elapsed wall time, or nil if the episode has not
// yet completed.
func (e *Episode) Duration() *time.Duration {
	if e.EndTime == nil {
		return nil
	}
	d := e.EndTime.Sub(e.StartTime)
	return &d
}

// AddStep appends a step, enforcing the dense-monotone step-number
// invariant: the new step's number must be len(Steps)+1.
func (e *Episode) AddStep(step ExecutionStep) error {
	if e.IsComplete() {
		return errInvalid("cannot log step: episode already completed")
	}
	expected := len(e.Steps) + 1
	if step.StepNumber != expected {
		return errInvalid("step number %d out of sequence, expected %d", step.StepNumber, expected)
	}
	e.Steps = append(e.Steps, step)
	return nil
}

// SuccessfulStepsCount returns the number of steps whose result was a
// Success.
func (e *Episode) SuccessfulStepsCount() int {
	n := 0
	for _, s := range e.Steps {
		if s.IsSuccessful() {
			n++
		}
	}
	return n
}

// StepSuccessRate returns SuccessfulStepsCount/len(Steps), or 0 for an
// episode with no steps.
func (e *Episode) StepSuccessRate() float64 {
	if len(e.Steps) == 0 {
		return 0
	}
	return float64(e.SuccessfulStepsCount()) / float64(len(e.Steps))
}

// ToolSet returns the distinct set of tool names used across all steps.
func (e *Episode) ToolSet() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Steps))
	for _, s := range e.Steps {
		set[s.Tool] = struct{}{}
	}
	return set
}

// Complete marks the episode finished with the given outcome and end
// time. It is the caller's responsibility (the engine) to subsequently
// compute reward/reflection and run the quality gate; Complete itself
// only flips the is_complete invariant.
func (e *Episode) Complete(outcome TaskOutcome) error {
	if e.IsComplete() {
		return errInvalid("episode already completed")
	}
	now := time.Now().UTC()
	if now.Before(e.StartTime) {
		now = e.StartTime
	}
	e.EndTime = &now
	e.Outcome = &outcome
	return nil
}

// Validate checks the episode invariants from the data model: end_time
// not before start_time, is_complete iff outcome is set, and dense
// monotone step numbering.
func (e *Episode) Validate() error {
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return errInvalid("end_time before start_time")
	}
	if (e.Outcome != nil) != (e.EndTime != nil) {
		return errInvalid("outcome and end_time must be set together")
	}
	for i, s := range e.Steps {
		if s.StepNumber != i+1 {
			return errInvalid("step numbers must be dense and monotone starting at 1")
		}
	}
	if !e.IsComplete() {
		if e.Reward != nil || e.Reflection != nil || len(e.ExtractedPatternIDs) > 0 {
			return errInvalid("only completed episodes may carry reward/reflection/extracted patterns")
		}
	}
	return nil
}

// SetTags replaces the tag set with a case-insensitive deduplicated copy
// of the given tags.
func (e *Episode) SetTags(tags []string) {
	e.Tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		e.Tags[normalizeTag(t)] = struct{}{}
	}
}

// AddTag inserts a tag, case-insensitively deduplicated.
func (e *Episode) AddTag(tag string) {
	if e.Tags == nil {
		e.Tags = make(map[string]struct{})
	}
	e.Tags[normalizeTag(tag)] = struct{}{}
}

// RemoveTag removes a tag if present.
func (e *Episode) RemoveTag(tag string) {
	delete(e.Tags, normalizeTag(tag))
}

// GetTags returns the tag set as a sorted-free slice.
func (e *Episode) GetTags() []string {
	tags := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		tags = append(tags, t)
	}
	return tags
}

// HasTag reports whether the episode carries the given tag
// (case-insensitive).
func (e *Episode) HasTag(tag string) bool {
	_, ok := e.Tags[normalizeTag(tag)]
	return ok
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
