// Package team defines the Team aggregate: one manager plus 3-5 workers
// collaborating on a single goal.
package team

import (
	"time"

	"github.com/google/uuid"

	"github.com/crewforge/crewd/internal/domain"
)

// Size bounds for a formed team, workers only (the manager is not counted).
const (
	MinSize = 3
	MaxSize = 5
)

// Status represents the lifecycle state of a team.
type Status string

const (
	StatusForming   Status = "forming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the team is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Team groups workers for collaborative work on one goal.
type Team struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Status    Status    `json:"status"`
	WorkerIDs []string  `json:"worker_ids"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a Team in the forming state for the given goal.
func New(goal string) *Team {
	now := time.Now().UTC()
	return &Team{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    StatusForming,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateSize checks that a worker count is within [MinSize, MaxSize].
func ValidateSize(n int) error {
	if n < MinSize || n > MaxSize {
		return &domain.InvalidTeamSizeError{Size: n}
	}
	return nil
}

// Activate records the formed worker set and moves the team to active.
func (t *Team) Activate(workerIDs []string) error {
	if err := ValidateSize(len(workerIDs)); err != nil {
		return err
	}
	t.WorkerIDs = workerIDs
	t.Status = StatusActive
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Finish moves the team to a terminal state.
func (t *Team) Finish(failed bool) {
	if failed {
		t.Status = StatusFailed
	} else {
		t.Status = StatusCompleted
	}
	t.UpdatedAt = time.Now().UTC()
}
