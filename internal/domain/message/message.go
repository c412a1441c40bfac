// Package message defines the point-to-point AgentMessage envelope, used for
// out-of-band coordination between the manager and workers. Messages are
// distinct from the broadcast event stream.
package message

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of message type tags. Consumers pattern-match on
// the tag rather than inspecting the opaque payload.
type Type string

const (
	TypeTaskFeedback  Type = "task_feedback"
	TypeStatusRequest Type = "status_request"
	TypeStatusReport  Type = "status_report"
)

// ValidType reports whether t is a known message type.
func ValidType(t string) bool {
	switch Type(t) {
	case TypeTaskFeedback, TypeStatusRequest, TypeStatusReport:
		return true
	}
	return false
}

// AgentMessage is a point-to-point envelope between two agent identities.
type AgentMessage struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds an AgentMessage with a fresh identity and the payload
// marshalled as opaque JSON.
func New(from, to string, typ Type, payload any) (AgentMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return AgentMessage{}, err
	}
	return AgentMessage{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Validate checks that the envelope is well-formed.
func (m *AgentMessage) Validate() error {
	if m.From == "" {
		return errors.New("from is required")
	}
	if m.To == "" {
		return errors.New("to is required")
	}
	if !ValidType(string(m.Type)) {
		return errors.New("unknown message type: " + string(m.Type))
	}
	return nil
}

// TaskFeedbackPayload is the payload for task_feedback messages.
type TaskFeedbackPayload struct {
	TaskID   string `json:"task_id"`
	Feedback string `json:"feedback"`
	Attempt  int    `json:"attempt"`
}
