package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/crewforge/crewd/internal/config"
	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/orchestration"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/domain/team"
	"github.com/crewforge/crewd/internal/port/messagequeue"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

func happyPathPort() *stubPort {
	return &stubPort{
		analyzeFn: rawResponse(analysisJSON),
		formFn:    rawResponse(threeWorkerSpecsJSON),
		decomposeFn: rawResponse(`[
			{"title": "Research options", "description": "Compare", "acceptance_criteria": ["report"], "required_skills": ["research"]},
			{"title": "Implement core", "description": "Build", "acceptance_criteria": ["tests"], "required_skills": ["go"]}
		]`),
		executeFn: rawResponse(executionOutputJSON),
		reviewFn:  rawResponse(`{"outcome": "approved"}`),
	}
}

func newTestEngine(rs reasoning.Port, store *memStore, queue *fakeQueue, cfg config.Orchestrator) *Engine {
	bus := NewBus(queue, testLogger())
	return NewEngine(store, bus, rs, prompt.DefaultLibrary(), cfg, testLogger(), nil)
}

func TestEngineRunGoalHappyPath(t *testing.T) {
	store := newMemStore()
	queue := newFakeQueue()
	e := newTestEngine(happyPathPort(), store, queue, schedulerConfig())

	tm, err := e.RunGoal(context.Background(), "ship the beta")
	if err != nil {
		t.Fatalf("RunGoal() error = %v", err)
	}

	stored, err := store.GetTeam(context.Background(), tm.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != team.StatusCompleted {
		t.Fatalf("team status = %q, want completed", stored.Status)
	}
	if len(stored.WorkerIDs) != 3 {
		t.Errorf("workers = %d, want 3", len(stored.WorkerIDs))
	}

	tasks, _ := store.ListTasksByTeam(context.Background(), tm.ID)
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	for _, tk := range tasks {
		if tk.Status != task.StatusApproved {
			t.Errorf("task %s status = %q, want approved", tk.Title, tk.Status)
		}
	}

	if got := queue.count(messagequeue.SubjectTeamFormed); got != 1 {
		t.Errorf("team.formed events = %d, want 1", got)
	}
	if got := queue.count(messagequeue.SubjectWorkerCreated); got != 3 {
		t.Errorf("worker.created events = %d, want 3", got)
	}
	if got := queue.count(messagequeue.SubjectTaskCompleted); got != 2 {
		t.Errorf("task.completed events = %d, want 2", got)
	}
}

func TestEngineRunGoalFormationFailure(t *testing.T) {
	rs := happyPathPort()
	// Every formation attempt returns a single worker.
	rs.formFn = rawResponse(`[{"specialization": "Coder", "skills": ["go"]}]`)

	store := newMemStore()
	e := newTestEngine(rs, store, newFakeQueue(), schedulerConfig())

	tm, err := e.RunGoal(context.Background(), "goal")
	var sizeErr *domain.InvalidTeamSizeError
	if !errors.As(err, &sizeErr) {
		t.Fatalf("expected InvalidTeamSizeError, got %v", err)
	}

	stored, _ := store.GetTeam(context.Background(), tm.ID)
	if stored.Status != team.StatusFailed {
		t.Errorf("team status = %q, want failed", stored.Status)
	}
}

func TestEngineRunGoalAnalysisFailure(t *testing.T) {
	rs := happyPathPort()
	rs.analyzeFn = func(context.Context, reasoning.Request) (json.RawMessage, error) {
		return nil, &domain.LLMError{Op: "analyze_goal", Err: errors.New("provider down")}
	}

	store := newMemStore()
	e := newTestEngine(rs, store, newFakeQueue(), schedulerConfig())

	tm, err := e.RunGoal(context.Background(), "goal")
	var llmErr *domain.LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected LLMError, got %v", err)
	}
	stored, _ := store.GetTeam(context.Background(), tm.ID)
	if stored.Status != team.StatusFailed {
		t.Errorf("team status = %q, want failed", stored.Status)
	}
}

func TestEngineRunGoalFailsTeamOnRejectedTask(t *testing.T) {
	rs := happyPathPort()
	rs.reviewFn = rawResponse(`{"outcome": "rejected", "reason": "unusable"}`)

	store := newMemStore()
	e := newTestEngine(rs, store, newFakeQueue(), schedulerConfig())

	tm, err := e.RunGoal(context.Background(), "goal")
	if err != nil {
		t.Fatalf("RunGoal() error = %v", err)
	}

	stored, _ := store.GetTeam(context.Background(), tm.ID)
	if stored.Status != team.StatusFailed {
		t.Errorf("team status = %q, want failed", stored.Status)
	}
}

func TestEngineState(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(happyPathPort(), store, newFakeQueue(), schedulerConfig())

	tm, err := e.RunGoal(context.Background(), "goal")
	if err != nil {
		t.Fatalf("RunGoal() error = %v", err)
	}

	state, err := e.State(context.Background(), tm.ID)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if state.CurrentPhase != orchestration.PhaseCompleted {
		t.Errorf("phase = %q, want completed", state.CurrentPhase)
	}
	if len(state.ActiveWorkers) != 0 {
		t.Errorf("active workers = %v, want none", state.ActiveWorkers)
	}
	if len(state.PendingTasks) != 0 {
		t.Errorf("pending tasks = %v, want none", state.PendingTasks)
	}

	if _, err := e.State(context.Background(), "unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown team, got %v", err)
	}
}

func TestEngineCancelUnknownTeam(t *testing.T) {
	e := newTestEngine(happyPathPort(), newMemStore(), newFakeQueue(), schedulerConfig())
	if err := e.Cancel("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineCancelRunningGoal(t *testing.T) {
	rs := happyPathPort()
	started := make(chan struct{})
	rs.executeFn = func(ctx context.Context, _ reasoning.Request) (json.RawMessage, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	store := newMemStore()
	e := newTestEngine(rs, store, newFakeQueue(), schedulerConfig())

	type result struct {
		tm  *team.Team
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		tm, err := e.RunGoal(context.Background(), "goal")
		resCh <- result{tm, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("execution never started")
	}

	// The goal is mid-execution; cancel it by team ID.
	var cancelled bool
	for range 100 {
		e.mu.Lock()
		var teamID string
		for id := range e.runs {
			teamID = id
		}
		e.mu.Unlock()
		if teamID != "" {
			if err := e.Cancel(teamID); err == nil {
				cancelled = true
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cancelled {
		t.Fatal("could not cancel the running goal")
	}

	var res result
	select {
	case res = <-resCh:
	case <-time.After(5 * time.Second):
		t.Fatal("RunGoal did not return after cancel")
	}

	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("RunGoal() error = %v, want context.Canceled", res.err)
	}
	stored, _ := store.GetTeam(context.Background(), res.tm.ID)
	if stored.Status != team.StatusFailed {
		t.Errorf("team status = %q, want failed", stored.Status)
	}
}

func TestEngineSubscribeGoals(t *testing.T) {
	store := newMemStore()
	queue := newFakeQueue()
	e := newTestEngine(happyPathPort(), store, queue, schedulerConfig())

	cancel, err := e.SubscribeGoals(context.Background())
	if err != nil {
		t.Fatalf("SubscribeGoals() error = %v", err)
	}
	defer cancel()

	data, _ := json.Marshal(messagequeue.GoalSubmittedPayload{Goal: "ship the beta"})
	if err := queue.Publish(context.Background(), messagequeue.SubjectGoalSubmitted, data); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// The run happens on its own goroutine; wait for the team to finish.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if queue.count(messagequeue.SubjectTaskCompleted) == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("goal submission was not processed")
}
