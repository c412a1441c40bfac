package messagequeue

import "encoding/json"

// GoalSubmittedPayload is the schema for goals.submitted messages.
type GoalSubmittedPayload struct {
	Goal string `json:"goal"`
}

// TeamFormedPayload is the schema for teams.formed messages.
type TeamFormedPayload struct {
	EventID     string `json:"event_id"`
	TeamID      string `json:"team_id"`
	WorkerCount int    `json:"worker_count"`
}

// WorkerCreatedPayload is the schema for workers.created messages.
type WorkerCreatedPayload struct {
	EventID        string `json:"event_id"`
	TeamID         string `json:"team_id"`
	WorkerID       string `json:"worker_id"`
	Specialization string `json:"specialization"`
}

// TaskAssignedPayload is the schema for tasks.assigned messages.
type TaskAssignedPayload struct {
	EventID  string `json:"event_id"`
	TeamID   string `json:"team_id"`
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// TaskCompletedPayload is the schema for tasks.completed messages.
type TaskCompletedPayload struct {
	EventID  string `json:"event_id"`
	TeamID   string `json:"team_id"`
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
}

// AgentMessagePayload is the schema for agents.message.{worker_id} messages.
type AgentMessagePayload struct {
	MessageID string          `json:"message_id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}
