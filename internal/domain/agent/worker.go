package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewforge/crewd/internal/domain"
)

// Worker is a finite-state unit that executes one assigned task at a time.
// A worker is owned exclusively by its team; its lifetime equals the team's
// lifetime or ends when it is explicitly retired.
type Worker struct {
	ID               string         `json:"id"`
	TeamID           string         `json:"team_id"`
	Specialization   Specialization `json:"specialization"`
	Skills           []string       `json:"skills"`
	Responsibilities []string       `json:"responsibilities"`
	RequiredTools    []string       `json:"required_tools"`
	Status           Status         `json:"status"`
	AssignedTaskID   string         `json:"assigned_task_id,omitempty"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// FromSpec instantiates a Worker from a WorkerSpec. Unknown specialization
// strings fall back to Researcher (see ParseSpecialization).
func FromSpec(teamID string, spec WorkerSpec) *Worker {
	now := time.Now().UTC()
	return &Worker{
		ID:               uuid.NewString(),
		TeamID:           teamID,
		Specialization:   ParseSpecialization(spec.Specialization),
		Skills:           spec.Skills,
		Responsibilities: spec.Responsibilities,
		RequiredTools:    spec.RequiredTools,
		Status:           StatusIdle,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// AssignTask records the task and moves the worker to Working.
// Fails with TaskExecutionError unless the worker is Idle; the status is
// left unchanged on failure.
func (w *Worker) AssignTask(taskID string) error {
	if w.Status != StatusIdle {
		return &domain.TaskExecutionError{
			Reason: fmt.Sprintf("worker %s is not idle (status: %s)", w.ID, w.Status),
		}
	}
	w.AssignedTaskID = taskID
	return w.transition(StatusWorking)
}

// Release clears the assignment and returns the worker to Idle, freeing it
// for reassignment.
func (w *Worker) Release() error {
	if err := w.transition(StatusIdle); err != nil {
		return err
	}
	w.AssignedTaskID = ""
	return nil
}

// Block marks the worker as Blocked: the assignment stays recorded but the
// worker cannot progress until manager intervention.
func (w *Worker) Block() error {
	return w.transition(StatusBlocked)
}

// CanHandle reports whether at least one required skill case-insensitively
// substring-matches at least one of the worker's skills. This is a
// deliberately permissive heuristic, documented as the matching policy.
func (w *Worker) CanHandle(requiredSkills []string) bool {
	for _, req := range requiredSkills {
		for _, skill := range w.Skills {
			if strings.Contains(strings.ToLower(skill), strings.ToLower(req)) {
				return true
			}
		}
	}
	return false
}

// Progress returns a read-only diagnostic snapshot of the worker.
func (w *Worker) Progress() string {
	taskRef := "none"
	if w.AssignedTaskID != "" {
		taskRef = w.AssignedTaskID
	}
	return fmt.Sprintf("worker %s (%s) - status: %s, task: %s",
		w.ID, w.Specialization, w.Status, taskRef)
}

// transition validates the status change against the transition table.
func (w *Worker) transition(next Status) error {
	if !w.Status.CanTransition(next) {
		return &domain.InvalidStateTransitionError{
			From: string(w.Status),
			To:   string(next),
		}
	}
	w.Status = next
	w.UpdatedAt = time.Now().UTC()
	return nil
}
