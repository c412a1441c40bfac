package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	crewdotel "github.com/crewforge/crewd/internal/adapter/otel"
	"github.com/crewforge/crewd/internal/config"
	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/event"
	"github.com/crewforge/crewd/internal/domain/orchestration"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/domain/team"
	"github.com/crewforge/crewd/internal/logger"
	"github.com/crewforge/crewd/internal/port/database"
	"github.com/crewforge/crewd/internal/port/messagequeue"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

// Engine drives a goal from analysis through team formation, decomposition,
// and scheduled execution to a terminal team state. One Engine serves many
// concurrent goals; each goal gets its own team, worker pool, and scheduler.
type Engine struct {
	store   database.Store
	bus     *Bus
	rs      reasoning.Port
	prompts *prompt.Library
	cfg     config.Orchestrator
	log     *slog.Logger
	metrics *crewdotel.Metrics // optional

	mu   sync.Mutex
	runs map[string]*goalRun
}

// goalRun is the in-memory state of one running goal.
type goalRun struct {
	phase  orchestration.Phase
	cancel context.CancelFunc
	pool   *WorkerPool
}

// NewEngine creates an Engine. metrics may be nil.
func NewEngine(
	store database.Store,
	bus *Bus,
	rs reasoning.Port,
	prompts *prompt.Library,
	cfg config.Orchestrator,
	log *slog.Logger,
	metrics *crewdotel.Metrics,
) *Engine {
	return &Engine{
		store:   store,
		bus:     bus,
		rs:      rs,
		prompts: prompts,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		runs:    make(map[string]*goalRun),
	}
}

// RunGoal executes the full lifecycle for one goal and returns the team in
// its terminal state. The returned error reflects why the run failed or was
// cancelled; an error with a non-nil team means the team record is persisted.
func (e *Engine) RunGoal(ctx context.Context, goalText string) (*team.Team, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	manager := NewManager(e.rs, e.prompts, e.cfg.FormTeamRetries, e.log)

	t := team.New(goalText)
	if err := e.store.SaveTeam(ctx, t); err != nil {
		return nil, fmt.Errorf("save team: %w", err)
	}

	run := &goalRun{phase: orchestration.PhaseAnalyzing, cancel: cancel}
	e.mu.Lock()
	e.runs[t.ID] = run
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, t.ID)
		e.mu.Unlock()
	}()

	ctx = logger.WithTeamID(ctx, t.ID)
	log := logger.FromContext(ctx, e.log)
	log.Info("goal accepted", "goal", truncate(goalText, 200))

	analysis, err := manager.AnalyzeGoal(ctx, goalText)
	if err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("analyze goal: %w", err))
	}

	e.setPhase(run, orchestration.PhaseForming)
	specs, err := manager.FormTeam(ctx, goalText, analysis)
	if err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("form team: %w", err))
	}

	pool := NewWorkerPool(e.store, e.bus, e.rs, e.prompts, e.log)
	defer pool.Close()
	run.pool = pool
	workerIDs, err := pool.Spawn(ctx, t.ID, specs)
	if err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("spawn workers: %w", err))
	}
	if err := t.Activate(workerIDs); err != nil {
		return t, e.finish(ctx, t, run, true, err)
	}
	if err := e.store.SaveTeam(ctx, t); err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("save team: %w", err))
	}
	if ev, evErr := event.NewTeamFormed(t.ID, len(workerIDs)); evErr == nil {
		if pubErr := e.bus.PublishEvent(ctx, ev); pubErr != nil {
			log.Warn("team.formed publish failed", "error", pubErr)
		}
	}
	log.Info("team formed", "workers", len(workerIDs))

	e.setPhase(run, orchestration.PhaseDecomposing)
	tasks, err := manager.DecomposeGoal(ctx, t.ID, goalText)
	if err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("decompose goal: %w", err))
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, tk := range tasks {
		g.Go(func() error { return e.store.SaveTask(gctx, tk) })
	}
	if err := g.Wait(); err != nil {
		return t, e.finish(ctx, t, run, true, fmt.Errorf("save task: %w", err))
	}

	execCtx := ctx
	if budget := e.budget(analysis.EstimatedTimelineHours); budget > 0 {
		var budgetCancel context.CancelFunc
		execCtx, budgetCancel = context.WithTimeout(ctx, budget)
		defer budgetCancel()
		log.Info("execution budget set", "budget", budget.String())
	}

	e.setPhase(run, orchestration.PhaseExecuting)
	sched := NewScheduler(pool, e.store, e.bus, manager, e.cfg, e.log, e.metrics)
	sched.Load(tasks)

	runErr := sched.Run(execCtx)
	failed := runErr != nil || sched.Failed()
	return t, e.finish(ctx, t, run, failed, runErr)
}

// Cancel aborts a running goal: dispatch stops, in-flight tasks are failed,
// and workers return to idle. Returns ErrNotFound for unknown teams.
func (e *Engine) Cancel(teamID string) error {
	e.mu.Lock()
	run, ok := e.runs[teamID]
	e.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	run.cancel()
	e.log.Info("goal cancelled", "team_id", teamID)
	return nil
}

// Progress returns human-readable worker progress lines for a running goal.
func (e *Engine) Progress(teamID string) ([]string, error) {
	e.mu.Lock()
	run, ok := e.runs[teamID]
	e.mu.Unlock()
	if !ok || run.pool == nil {
		return nil, domain.ErrNotFound
	}
	return run.pool.Progress(), nil
}

// State returns the derived projection for a team: the current phase, the
// workers currently executing, and the tasks not yet terminal. It is
// recomputed from stored worker and task state on every call.
func (e *Engine) State(ctx context.Context, teamID string) (*orchestration.AgentState, error) {
	t, err := e.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	run, running := e.runs[teamID]
	var phase orchestration.Phase
	if running {
		phase = run.phase
	}
	e.mu.Unlock()
	if !running {
		phase = phaseFromTeam(t.Status)
	}

	workers, err := e.store.ListWorkersByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	tasks, err := e.store.ListTasksByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	state := &orchestration.AgentState{
		TeamID:       teamID,
		CurrentPhase: phase,
	}
	for i := range workers {
		if workers[i].Status == agent.StatusWorking {
			state.ActiveWorkers = append(state.ActiveWorkers, workers[i].ID)
		}
	}
	for i := range tasks {
		if !tasks[i].Status.IsTerminal() {
			state.PendingTasks = append(state.PendingTasks, tasks[i].ID)
		}
	}
	return state, nil
}

// SubscribeGoals wires the engine to the goals.submitted subject. Each valid
// submission starts a goal run on its own goroutine.
func (e *Engine) SubscribeGoals(ctx context.Context) (func(), error) {
	return e.bus.SubscribeEvents(ctx, messagequeue.SubjectGoalSubmitted,
		func(ctx context.Context, _ string, data []byte) error {
			var p messagequeue.GoalSubmittedPayload
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("decode goal submission: %w", err)
			}
			if p.Goal == "" {
				return fmt.Errorf("empty goal submission")
			}
			go func() {
				if _, err := e.RunGoal(context.WithoutCancel(ctx), p.Goal); err != nil {
					e.log.Error("goal run failed", "error", err)
				}
			}()
			return nil
		})
}

// budget converts the analysis estimate into a wall-clock execution budget.
// Zero disables the budget.
func (e *Engine) budget(estimatedHours float64) time.Duration {
	if e.cfg.BudgetMultiplier <= 0 || estimatedHours <= 0 {
		return 0
	}
	return time.Duration(estimatedHours * e.cfg.BudgetMultiplier * float64(time.Hour))
}

// finish moves the team to its terminal state and persists it. The original
// cause, if any, is returned after the team record is settled.
func (e *Engine) finish(ctx context.Context, t *team.Team, run *goalRun, failed bool, cause error) error {
	t.Finish(failed)
	if err := e.store.SaveTeam(context.WithoutCancel(ctx), t); err != nil {
		e.log.Error("save finished team failed", "team_id", t.ID, "error", err)
	}

	if failed {
		e.setPhase(run, orchestration.PhaseFailed)
		e.log.Warn("goal failed", "team_id", t.ID, "error", cause)
	} else {
		e.setPhase(run, orchestration.PhaseCompleted)
		e.log.Info("goal completed", "team_id", t.ID)
	}
	return cause
}

func (e *Engine) setPhase(run *goalRun, phase orchestration.Phase) {
	e.mu.Lock()
	run.phase = phase
	e.mu.Unlock()
}

// phaseFromTeam derives a coarse phase for teams with no in-memory run.
func phaseFromTeam(s team.Status) orchestration.Phase {
	switch s {
	case team.StatusForming:
		return orchestration.PhaseForming
	case team.StatusActive:
		return orchestration.PhaseExecuting
	case team.StatusFailed:
		return orchestration.PhaseFailed
	default:
		return orchestration.PhaseCompleted
	}
}
