// Package goal defines the GoalAnalysis domain entity.
package goal

import "errors"

// Analysis is the manager's structured understanding of a user goal.
// Immutable once produced.
type Analysis struct {
	CoreObjective           string   `json:"core_objective"`
	Subtasks                []string `json:"subtasks"`
	RequiredSpecializations []string `json:"required_specializations"`
	EstimatedTimelineHours  float64  `json:"estimated_timeline_hours"`
	PotentialBlockers       []string `json:"potential_blockers"`
	SuccessCriteria         []string `json:"success_criteria"`
}

// Validate checks that an Analysis is usable for team formation.
func (a *Analysis) Validate() error {
	if a.CoreObjective == "" {
		return errors.New("core objective is required")
	}
	if len(a.Subtasks) == 0 {
		return errors.New("at least one subtask is required")
	}
	if a.EstimatedTimelineHours < 0 {
		return errors.New("estimated timeline must be >= 0")
	}
	return nil
}
