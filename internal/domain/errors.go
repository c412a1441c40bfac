// Package domain provides shared domain-level errors for the agent system.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrAgentNotFound indicates a reference to an unknown worker, task, or team.
// Callers must not retry: the reference itself is wrong.
var ErrAgentNotFound = errors.New("agent not found")

// LLMError indicates a reasoning call failed. Recoverable per attempt,
// subject to the scheduler's attempt cap.
type LLMError struct {
	Op  string
	Err error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// JSONError indicates a structured reasoning response could not be parsed.
type JSONError struct {
	Op  string
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Op, e.Err)
}

func (e *JSONError) Unwrap() error { return e.Err }

// InvalidTeamSizeError indicates team formation produced a worker count
// outside the allowed range.
type InvalidTeamSizeError struct {
	Size int
}

func (e *InvalidTeamSizeError) Error() string {
	return fmt.Sprintf("invalid team size: %d (must be 3-5 workers)", e.Size)
}

// TaskExecutionError indicates execution was invoked without a valid
// assignment, or an assignment was attempted on a non-idle worker.
type TaskExecutionError struct {
	Reason string
}

func (e *TaskExecutionError) Error() string {
	return "task execution failed: " + e.Reason
}

// InvalidStateTransitionError indicates an attempted transition not present
// in the allowed transition table. Indicates a caller bug; do not retry.
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// MessageDeliveryError indicates a point-to-point message was addressed to
// an identity unknown to the bus.
type MessageDeliveryError struct {
	To string
}

func (e *MessageDeliveryError) Error() string {
	return "message delivery failed: unknown destination " + e.To
}

// ConfigError indicates invalid configuration, such as a malformed prompt template.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}
