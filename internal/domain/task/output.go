package task

import "encoding/json"

// Output holds the result of one execution attempt. Produced once per
// attempt and never mutated.
type Output struct {
	TaskID    string          `json:"task_id"`
	WorkerID  string          `json:"worker_id"`
	Result    json.RawMessage `json:"result"`
	Artifacts []string        `json:"artifacts"`
	Logs      []string        `json:"logs"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}
