package task

import (
	"errors"
	"testing"

	"github.com/crewforge/crewd/internal/domain"
)

func newPendingTask() *Task {
	return New("team-1", "Write report", "Summarize findings",
		[]string{"covers all sources"}, []string{"research"})
}

func TestNewTask(t *testing.T) {
	tk := newPendingTask()

	if tk.ID == "" {
		t.Fatal("expected generated task ID")
	}
	if tk.Status != StatusPending {
		t.Errorf("Status = %q, want pending", tk.Status)
	}
	if tk.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", tk.Attempts)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAssigned, true},
		{StatusPending, StatusInReview, false},
		{StatusAssigned, StatusInReview, true},
		{StatusAssigned, StatusPending, true},
		{StatusAssigned, StatusFailed, true},
		{StatusAssigned, StatusApproved, false},
		{StatusInReview, StatusApproved, true},
		{StatusInReview, StatusFailed, true},
		{StatusInReview, StatusAssigned, true},
		{StatusInReview, StatusPending, false},
		{StatusApproved, StatusPending, false},
		{StatusFailed, StatusAssigned, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionRejectsInvalid(t *testing.T) {
	tk := newPendingTask()

	err := tk.Transition(StatusApproved)
	var transErr *domain.InvalidStateTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("expected InvalidStateTransitionError, got %v", err)
	}
	if tk.Status != StatusPending {
		t.Errorf("Status = %q, want pending after rejected transition", tk.Status)
	}
}

func TestAssignAndRequeue(t *testing.T) {
	tk := newPendingTask()

	if err := tk.Assign("w1"); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if tk.Status != StatusAssigned || tk.AssignedWorkerID != "w1" {
		t.Fatalf("after assign: status=%q worker=%q", tk.Status, tk.AssignedWorkerID)
	}

	if err := tk.Requeue(); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if tk.Status != StatusPending {
		t.Errorf("Status = %q, want pending", tk.Status)
	}
	// Requeued tasks are free to land on any idle worker.
	if tk.AssignedWorkerID != "" {
		t.Errorf("AssignedWorkerID = %q, want empty", tk.AssignedWorkerID)
	}
}

func TestRecordFeedback(t *testing.T) {
	tk := newPendingTask()

	tk.RecordFeedback("missing citations")
	tk.RecordFeedback("still missing one")

	if tk.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", tk.Attempts)
	}
	if len(tk.Feedback) != 2 || tk.Feedback[1] != "still missing one" {
		t.Errorf("Feedback = %v", tk.Feedback)
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAssigned, StatusInReview} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []Status{StatusApproved, StatusFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
