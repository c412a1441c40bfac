package agent

import "errors"

// WorkerSpec describes a worker to be instantiated during team formation.
// Each spec is consumed exactly once to create a Worker.
type WorkerSpec struct {
	Specialization   string   `json:"specialization"`
	Skills           []string `json:"skills"`
	Responsibilities []string `json:"responsibilities"`
	RequiredTools    []string `json:"required_tools"`
}

// Validate checks that a WorkerSpec is well-formed.
func (s *WorkerSpec) Validate() error {
	if s.Specialization == "" {
		return errors.New("specialization is required")
	}
	return nil
}
