package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/goal"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/domain/review"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/domain/team"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

// Manager is the coordinating agent: it analyzes goals, forms teams,
// decomposes work into tasks, and reviews worker output. All reasoning goes
// through the reasoning port; the Manager owns response schema parsing.
type Manager struct {
	rs              reasoning.Port
	prompts         *prompt.Library
	formTeamRetries int
	log             *slog.Logger
}

// NewManager creates a Manager. formTeamRetries is the number of re-prompts
// allowed after team formation produces an out-of-range worker count.
func NewManager(rs reasoning.Port, prompts *prompt.Library, formTeamRetries int, log *slog.Logger) *Manager {
	return &Manager{
		rs:              rs,
		prompts:         prompts,
		formTeamRetries: formTeamRetries,
		log:             log,
	}
}

// AnalyzeGoal produces a structured Analysis of a free-form goal.
func (m *Manager) AnalyzeGoal(ctx context.Context, goalText string) (*goal.Analysis, error) {
	user, err := m.prompts.GoalAnalysis.Render(map[string]string{
		"goal": sanitizePromptInput(goalText),
	})
	if err != nil {
		return nil, err
	}

	raw, err := m.rs.AnalyzeGoal(ctx, reasoning.Request{
		System: m.prompts.GoalAnalysis.System,
		User:   user,
	})
	if err != nil {
		return nil, err
	}

	var a goal.Analysis
	if err := json.Unmarshal([]byte(extractJSON(string(raw))), &a); err != nil {
		return nil, &domain.JSONError{Op: "analyze_goal", Err: fmt.Errorf("%w (content: %s)", err, truncate(string(raw), 200))}
	}
	if err := a.Validate(); err != nil {
		return nil, &domain.JSONError{Op: "analyze_goal", Err: err}
	}

	m.log.Info("goal analyzed",
		"objective", truncate(a.CoreObjective, 120),
		"subtasks", len(a.Subtasks),
		"estimated_hours", a.EstimatedTimelineHours,
	)
	return &a, nil
}

// FormTeam produces 3-5 worker specifications for the analyzed goal.
// An out-of-range worker count is re-prompted up to formTeamRetries times;
// the last InvalidTeamSizeError is returned if every attempt is out of range.
func (m *Manager) FormTeam(ctx context.Context, goalText string, analysis *goal.Analysis) ([]agent.WorkerSpec, error) {
	user, err := m.prompts.TeamFormation.Render(map[string]string{
		"goal":     sanitizePromptInput(goalText),
		"subtasks": joinList(analysis.Subtasks),
	})
	if err != nil {
		return nil, err
	}
	req := reasoning.Request{System: m.prompts.TeamFormation.System, User: user}

	var lastErr error
	for attempt := 0; attempt <= m.formTeamRetries; attempt++ {
		specs, err := m.formTeamOnce(ctx, req)
		if err == nil {
			return specs, nil
		}

		var sizeErr *domain.InvalidTeamSizeError
		if !errors.As(err, &sizeErr) {
			return nil, err
		}
		lastErr = err
		m.log.Warn("team formation out of range, re-prompting",
			"size", sizeErr.Size, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (m *Manager) formTeamOnce(ctx context.Context, req reasoning.Request) ([]agent.WorkerSpec, error) {
	raw, err := m.rs.FormTeam(ctx, req)
	if err != nil {
		return nil, err
	}

	var specs []agent.WorkerSpec
	if err := json.Unmarshal([]byte(extractJSON(string(raw))), &specs); err != nil {
		return nil, &domain.JSONError{Op: "form_team", Err: fmt.Errorf("%w (content: %s)", err, truncate(string(raw), 200))}
	}
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, &domain.JSONError{Op: "form_team", Err: fmt.Errorf("spec %d: %w", i, err)}
		}
	}
	if err := team.ValidateSize(len(specs)); err != nil {
		return nil, err
	}
	return specs, nil
}

// DecomposeGoal breaks the goal into concrete pending tasks for the team.
func (m *Manager) DecomposeGoal(ctx context.Context, teamID, goalText string) ([]*task.Task, error) {
	user, err := m.prompts.TaskDecomposition.Render(map[string]string{
		"goal": sanitizePromptInput(goalText),
	})
	if err != nil {
		return nil, err
	}

	raw, err := m.rs.Decompose(ctx, reasoning.Request{
		System: m.prompts.TaskDecomposition.System,
		User:   user,
	})
	if err != nil {
		return nil, err
	}

	var defs []struct {
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		AcceptanceCriteria []string `json:"acceptance_criteria"`
		RequiredSkills     []string `json:"required_skills"`
	}
	if err := json.Unmarshal([]byte(extractJSON(string(raw))), &defs); err != nil {
		return nil, &domain.JSONError{Op: "decompose", Err: fmt.Errorf("%w (content: %s)", err, truncate(string(raw), 200))}
	}
	if len(defs) == 0 {
		return nil, &domain.JSONError{Op: "decompose", Err: errors.New("no tasks in decomposition")}
	}

	tasks := make([]*task.Task, 0, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.Title) == "" {
			return nil, &domain.JSONError{Op: "decompose", Err: fmt.Errorf("task %d: title is required", i)}
		}
		tasks = append(tasks, task.New(teamID, d.Title, d.Description, d.AcceptanceCriteria, d.RequiredSkills))
	}

	m.log.Info("goal decomposed", "team_id", teamID, "tasks", len(tasks))
	return tasks, nil
}

// ReviewOutput evaluates a worker's output against the task's acceptance
// criteria and returns the manager's decision.
func (m *Manager) ReviewOutput(ctx context.Context, tsk *task.Task, out *task.Output) (review.Decision, error) {
	user, err := m.prompts.OutputReview.Render(map[string]string{
		"title":               tsk.Title,
		"acceptance_criteria": joinList(tsk.AcceptanceCriteria),
		"output":              renderOutput(out),
	})
	if err != nil {
		return review.Decision{}, err
	}

	raw, err := m.rs.Review(ctx, reasoning.Request{
		System: m.prompts.OutputReview.System,
		User:   user,
	})
	if err != nil {
		return review.Decision{}, err
	}

	var d review.Decision
	if err := json.Unmarshal([]byte(extractJSON(string(raw))), &d); err != nil {
		return review.Decision{}, &domain.JSONError{Op: "review", Err: fmt.Errorf("%w (content: %s)", err, truncate(string(raw), 200))}
	}
	if err := d.Validate(); err != nil {
		return review.Decision{}, &domain.JSONError{Op: "review", Err: err}
	}

	m.log.Info("output reviewed", "task_id", tsk.ID, "outcome", string(d.Outcome))
	return d, nil
}

// renderOutput flattens a task output into prompt-embeddable text.
func renderOutput(out *task.Output) string {
	var b strings.Builder
	b.WriteString(string(out.Result))
	if len(out.Artifacts) > 0 {
		b.WriteString("\nArtifacts:\n")
		b.WriteString(joinList(out.Artifacts))
	}
	if len(out.Logs) > 0 {
		b.WriteString("\nLogs:\n")
		b.WriteString(joinList(out.Logs))
	}
	return b.String()
}
