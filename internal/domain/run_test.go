package domain

import "testing"

func TestRunStatus_Terminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusPending, false},
		{RunStatusRunning, false},
		{RunStatusInterrupted, false},
		{RunStatusResumed, false},
		{RunStatusCompleted, true},
		{RunStatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRun_NextStep(t *testing.T) {
	run := Run{
		Plan: []Step{
			{Kind: StepKindEdit, Description: "edit server"},
			{Kind: StepKindTest, Description: "run tests"},
		},
	}

	step := run.NextStep()
	if step == nil || step.Description != "edit server" {
		t.Fatalf("Expected first step, got %v", step)
	}

	run.Cursor = 1
	step = run.NextStep()
	if step == nil || step.Description != "run tests" {
		t.Fatalf("Expected second step, got %v", step)
	}

	run.Cursor = 2
	if step := run.NextStep(); step != nil {
		t.Errorf("Expected nil past end of plan, got %v", step)
	}
}
