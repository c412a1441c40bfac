package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	// Map subject to payload struct for structural validation.
	var target any
	switch {
	case subject == SubjectGoalSubmitted:
		target = &GoalSubmittedPayload{}
	case subject == SubjectTeamFormed:
		target = &TeamFormedPayload{}
	case subject == SubjectWorkerCreated:
		target = &WorkerCreatedPayload{}
	case subject == SubjectTaskAssigned:
		target = &TaskAssignedPayload{}
	case subject == SubjectTaskCompleted:
		target = &TaskCompletedPayload{}
	case strings.HasPrefix(subject, SubjectAgentMessage+"."):
		target = &AgentMessagePayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
