package message_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/crewforge/crewd/internal/domain/message"
)

func TestNewMessage(t *testing.T) {
	msg, err := message.New("manager", "w1", message.TypeTaskFeedback, message.TaskFeedbackPayload{
		TaskID:   "task-1",
		Feedback: "tighten the summary",
		Attempt:  2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected generated message ID")
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	var p message.TaskFeedbackPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.TaskID != "task-1" || p.Attempt != 2 {
		t.Errorf("payload = %+v", p)
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	orig, err := message.New("manager", "w1", message.TypeTaskFeedback, message.TaskFeedbackPayload{
		TaskID:   "task-1",
		Feedback: "tighten the summary",
		Attempt:  1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got message.AgentMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != orig.ID || got.From != orig.From || got.To != orig.To || got.Type != orig.Type {
		t.Fatalf("round trip changed envelope: got %+v, want %+v", got, orig)
	}
	if !bytes.Equal(got.Payload, orig.Payload) {
		t.Errorf("Payload = %s, want %s", got.Payload, orig.Payload)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, orig.CreatedAt)
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     message.AgentMessage
		wantErr bool
	}{
		{"valid", message.AgentMessage{From: "a", To: "b", Type: message.TypeStatusRequest}, false},
		{"missing from", message.AgentMessage{To: "b", Type: message.TypeStatusRequest}, true},
		{"missing to", message.AgentMessage{From: "a", Type: message.TypeStatusReport}, true},
		{"unknown type", message.AgentMessage{From: "a", To: "b", Type: "gossip"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidType(t *testing.T) {
	for _, typ := range []string{"task_feedback", "status_request", "status_report"} {
		if !message.ValidType(typ) {
			t.Errorf("ValidType(%q) = false", typ)
		}
	}
	if message.ValidType("task-feedback") {
		t.Error("ValidType(\"task-feedback\") = true")
	}
}
