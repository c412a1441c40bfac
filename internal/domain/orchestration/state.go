// Package orchestration defines the derived, read-only state projection of a
// running team.
package orchestration

// Phase describes where a team is in the goal lifecycle.
type Phase string

const (
	PhaseAnalyzing   Phase = "analyzing"
	PhaseForming     Phase = "forming"
	PhaseDecomposing Phase = "decomposing"
	PhaseExecuting   Phase = "executing"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

// AgentState is a queryable snapshot recomputed from worker and task state.
// It is never the source of truth.
type AgentState struct {
	TeamID        string   `json:"team_id"`
	CurrentPhase  Phase    `json:"current_phase"`
	ActiveWorkers []string `json:"active_workers"`
	PendingTasks  []string `json:"pending_tasks"`
}
