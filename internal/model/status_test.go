package model

import "testing"

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPending, TaskStatusProcessing, true},
		{TaskStatusPending, TaskStatusFailed, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusPending, TaskStatusPending, false},
		{TaskStatusProcessing, TaskStatusCompleted, true},
		{TaskStatusProcessing, TaskStatusFailed, true},
		{TaskStatusProcessing, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusFailed, false},
		{TaskStatusCompleted, TaskStatusProcessing, false},
		{TaskStatusFailed, TaskStatusCompleted, false},
		{TaskStatusFailed, TaskStatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if TaskStatusPending.IsTerminal() || TaskStatusProcessing.IsTerminal() {
		t.Error("transient states must not be terminal")
	}
	if !TaskStatusCompleted.IsTerminal() || !TaskStatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestTaskStatusValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if TaskStatus("cancelled").Valid() {
		t.Error("unknown status should be invalid")
	}
}
