// Package event defines the AgentEvent domain entity for lifecycle broadcasting.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of agent event.
type Type string

const (
	TypeTaskAssigned  Type = "task.assigned"
	TypeTaskCompleted Type = "task.completed"
	TypeWorkerCreated Type = "worker.created"
	TypeTeamFormed    Type = "team.formed"
)

// AgentEvent is a single immutable lifecycle event. Events are broadcast,
// delivered at least once, and ordered per publisher.
type AgentEvent struct {
	ID        string          `json:"id"`
	TeamID    string          `json:"team_id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// TaskAssignedPayload carries the identities for task.assigned events.
type TaskAssignedPayload struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// TaskCompletedPayload carries the identities for task.completed events.
type TaskCompletedPayload struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// WorkerCreatedPayload carries the identities for worker.created events.
type WorkerCreatedPayload struct {
	WorkerID       string `json:"worker_id"`
	Specialization string `json:"specialization"`
}

// TeamFormedPayload carries the identities for team.formed events.
type TeamFormedPayload struct {
	TeamID      string `json:"team_id"`
	WorkerCount int    `json:"worker_count"`
}

// NewTaskAssigned builds a task.assigned event.
func NewTaskAssigned(teamID, taskID, workerID string) (AgentEvent, error) {
	return newEvent(teamID, TypeTaskAssigned, TaskAssignedPayload{TaskID: taskID, WorkerID: workerID})
}

// NewTaskCompleted builds a task.completed event.
func NewTaskCompleted(teamID, taskID, workerID string) (AgentEvent, error) {
	return newEvent(teamID, TypeTaskCompleted, TaskCompletedPayload{TaskID: taskID, WorkerID: workerID})
}

// NewWorkerCreated builds a worker.created event.
func NewWorkerCreated(teamID, workerID, specialization string) (AgentEvent, error) {
	return newEvent(teamID, TypeWorkerCreated, WorkerCreatedPayload{WorkerID: workerID, Specialization: specialization})
}

// NewTeamFormed builds a team.formed event.
func NewTeamFormed(teamID string, workerCount int) (AgentEvent, error) {
	return newEvent(teamID, TypeTeamFormed, TeamFormedPayload{TeamID: teamID, WorkerCount: workerCount})
}

func newEvent(teamID string, typ Type, payload any) (AgentEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return AgentEvent{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return AgentEvent{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// DecodePayload unmarshals the event payload into target, which must match
// the payload struct for the event's type.
func (e *AgentEvent) DecodePayload(target any) error {
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
