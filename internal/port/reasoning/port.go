// Package reasoning defines the reasoning capability port (interface)
// backed by an external LLM.
package reasoning

import (
	"context"
	"encoding/json"
)

// Request is a rendered prompt pair sent to the reasoning capability.
type Request struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Port is the abstract reasoning capability consumed by the manager and the
// workers. Each call returns the provider's raw JSON response; the caller
// owns schema parsing. Worker task execution goes through the same external
// capability as the manager-facing operations.
type Port interface {
	// AnalyzeGoal performs goal analysis.
	AnalyzeGoal(ctx context.Context, req Request) (json.RawMessage, error)

	// FormTeam produces worker specifications for a team.
	FormTeam(ctx context.Context, req Request) (json.RawMessage, error)

	// Decompose breaks a goal into concrete tasks.
	Decompose(ctx context.Context, req Request) (json.RawMessage, error)

	// Review evaluates a task output against its acceptance criteria.
	Review(ctx context.Context, req Request) (json.RawMessage, error)

	// Execute runs an assigned task with the worker's task context.
	Execute(ctx context.Context, req Request) (json.RawMessage, error)
}
