package model

import "testing"

func TestEpisodeStepOrdering(t *testing.T) {
	ep := NewEpisode("build thing", DefaultTaskContext(), TaskCodeGeneration)

	if err := ep.AddStep(NewStep(1, "create_router", "set up router")); err != nil {
		t.Fatalf("add step 1: %v", err)
	}
	if err := ep.AddStep(NewStep(3, "skip", "bad")); err == nil {
		t.Fatal("expected error for out-of-sequence step number")
	}
	if err := ep.AddStep(NewStep(2, "add_middleware", "wire middleware")); err != nil {
		t.Fatalf("add step 2: %v", err)
	}
	if len(ep.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(ep.Steps))
	}
}

func TestEpisodeCompleteSetsInvariants(t *testing.T) {
	ep := NewEpisode("task", DefaultTaskContext(), TaskTesting)
	if ep.IsComplete() {
		t.Fatal("new episode should not be complete")
	}

	if err := ep.Complete(NewSuccessOutcome("done", []string{"out.txt"})); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !ep.IsComplete() {
		t.Fatal("expected episode to be complete")
	}
	if ep.EndTime == nil || ep.EndTime.Before(ep.StartTime) {
		t.Fatal("end_time must be set and not before start_time")
	}
	if err := ep.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := ep.Complete(NewSuccessOutcome("again", nil)); err == nil {
		t.Fatal("expected error completing an already-completed episode")
	}
}

func TestEpisodeCannotLogStepAfterCompletion(t *testing.T) {
	ep := NewEpisode("task", DefaultTaskContext(), TaskTesting)
	if err := ep.Complete(NewFailureOutcome("broke", "")); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := ep.AddStep(NewStep(1, "tool", "action")); err == nil {
		t.Fatal("expected error logging a step on a completed episode")
	}
}

func TestEpisodeTagsCaseInsensitiveDedup(t *testing.T) {
	ep := NewEpisode("task", DefaultTaskContext(), TaskOther)
	ep.AddTag("REST")
	ep.AddTag("rest")
	ep.AddTag(" Rest ")

	if len(ep.GetTags()) != 1 {
		t.Fatalf("expected 1 deduplicated tag, got %v", ep.GetTags())
	}
	if !ep.HasTag("ReSt") {
		t.Fatal("expected case-insensitive tag match")
	}
	ep.RemoveTag("rest")
	if ep.HasTag("rest") {
		t.Fatal("expected tag to be removed")
	}
}

func TestEpisodeStepSuccessRate(t *testing.T) {
	ep := NewEpisode("task", DefaultTaskContext(), TaskTesting)
	if ep.StepSuccessRate() != 0 {
		t.Fatal("empty episode should have zero success rate")
	}

	for i := 1; i <= 4; i++ {
		s := NewStep(i, "tool", "action")
		if i <= 3 {
			r := NewSuccessResult("ok")
			s.Result = &r
		} else {
			r := NewErrorResult("boom")
			s.Result = &r
		}
		if err := ep.AddStep(s); err != nil {
			t.Fatalf("add step %d: %v", i, err)
		}
	}

	if got, want := ep.StepSuccessRate(), 0.75; got != want {
		t.Fatalf("success rate = %v, want %v", got, want)
	}
}

func TestEpisodeValidateRejectsRewardOnIncomplete(t *testing.T) {
	ep := NewEpisode("task", DefaultTaskContext(), TaskOther)
	ep.Reward = &RewardScore{Total: 1}
	if err := ep.Validate(); err == nil {
		t.Fatal("expected validation error: reward on incomplete episode")
	}
}
