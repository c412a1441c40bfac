// Package task defines the Task domain entity and its state machine.
package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/crewforge/crewd/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAssigned Status = "assigned"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusFailed   Status = "failed"
)

// statusTransitions is the allowed task status transition table.
// in_review -> assigned covers revision re-queues to the same worker;
// assigned -> pending covers timeout re-queues; assigned -> failed covers
// cancellation of in-flight work.
var statusTransitions = map[Status][]Status{
	StatusPending:  {StatusAssigned},
	StatusAssigned: {StatusInReview, StatusPending, StatusFailed},
	StatusInReview: {StatusApproved, StatusFailed, StatusAssigned},
	StatusApproved: {},
	StatusFailed:   {},
}

// CanTransition reports whether the transition from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, t := range statusTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true once the task's outcome is final.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusFailed
}

// Task is a unit of work produced by goal decomposition. It is mutated only
// by the scheduler and the manager.
type Task struct {
	ID                 string    `json:"id"`
	TeamID             string    `json:"team_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	AcceptanceCriteria []string  `json:"acceptance_criteria"`
	RequiredSkills     []string  `json:"required_skills"`
	Status             Status    `json:"status"`
	AssignedWorkerID   string    `json:"assigned_worker_id,omitempty"`
	Attempts           int       `json:"attempts"`
	Feedback           []string  `json:"feedback,omitempty"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// New creates a pending Task for the given team.
func New(teamID, title, description string, acceptanceCriteria, requiredSkills []string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:                 uuid.NewString(),
		TeamID:             teamID,
		Title:              title,
		Description:        description,
		AcceptanceCriteria: acceptanceCriteria,
		RequiredSkills:     requiredSkills,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Transition validates and applies a status change.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return &domain.InvalidStateTransitionError{
			From: string(t.Status),
			To:   string(next),
		}
	}
	t.Status = next
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Assign transitions the task to assigned and records the owning worker.
func (t *Task) Assign(workerID string) error {
	if err := t.Transition(StatusAssigned); err != nil {
		return err
	}
	t.AssignedWorkerID = workerID
	return nil
}

// Requeue returns a timed-out or retried task to pending so it can be
// dispatched to any idle worker.
func (t *Task) Requeue() error {
	if err := t.Transition(StatusPending); err != nil {
		return err
	}
	t.AssignedWorkerID = ""
	return nil
}

// RecordFeedback appends manager feedback and counts the attempt. The task
// stays with the same worker; the scheduler re-queues it directly.
func (t *Task) RecordFeedback(feedback string) {
	t.Feedback = append(t.Feedback, feedback)
	t.Attempts++
	t.UpdatedAt = time.Now().UTC()
}
