package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/message"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/port/messagequeue"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

func testSpecs() []agent.WorkerSpec {
	return []agent.WorkerSpec{
		{Specialization: "Researcher", Skills: []string{"research"}},
		{Specialization: "Coder", Skills: []string{"go", "coding"}},
		{Specialization: "Tester", Skills: []string{"testing"}},
	}
}

func newTestPool(t *testing.T, rs reasoning.Port) (*WorkerPool, *memStore, *fakeQueue, []string) {
	t.Helper()
	store := newMemStore()
	queue := newFakeQueue()
	bus := NewBus(queue, testLogger())
	pool := NewWorkerPool(store, bus, rs, prompt.DefaultLibrary(), testLogger())

	ids, err := pool.Spawn(context.Background(), "team-1", testSpecs())
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return pool, store, queue, ids
}

func TestPoolSpawn(t *testing.T) {
	pool, store, queue, ids := newTestPool(t, &stubPort{})

	if len(ids) != 3 {
		t.Fatalf("spawned %d workers, want 3", len(ids))
	}
	if got := queue.count(messagequeue.SubjectWorkerCreated); got != 3 {
		t.Errorf("worker.created events = %d, want 3", got)
	}
	for _, id := range ids {
		w, err := pool.Get(id)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", id, err)
		}
		if w.Status != agent.StatusIdle {
			t.Errorf("worker %s status = %q, want idle", id, w.Status)
		}
		if _, err := store.GetWorker(context.Background(), id); err != nil {
			t.Errorf("worker %s not persisted: %v", id, err)
		}
	}
}

func TestPoolGetUnknown(t *testing.T) {
	pool, _, _, _ := newTestPool(t, &stubPort{})
	if _, err := pool.Get("nope"); !errors.Is(err, domain.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestPoolIdleOrderingAndAssign(t *testing.T) {
	pool, _, _, ids := newTestPool(t, &stubPort{})

	idle := pool.Idle()
	if len(idle) != 3 {
		t.Fatalf("idle = %d, want 3", len(idle))
	}
	for i := 1; i < len(idle); i++ {
		if idle[i-1] >= idle[i] {
			t.Fatalf("idle list not in ascending order: %v", idle)
		}
	}

	ctx := context.Background()
	if err := pool.Assign(ctx, ids[0], "task-1"); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got := len(pool.Idle()); got != 2 {
		t.Errorf("idle after assign = %d, want 2", got)
	}

	// Assigning a busy worker fails and leaves its state untouched.
	err := pool.Assign(ctx, ids[0], "task-2")
	var execErr *domain.TaskExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TaskExecutionError, got %v", err)
	}
	w, _ := pool.Get(ids[0])
	if w.AssignedTaskID != "task-1" {
		t.Errorf("AssignedTaskID = %q, want task-1", w.AssignedTaskID)
	}

	if err := pool.Release(ctx, ids[0]); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := len(pool.Idle()); got != 3 {
		t.Errorf("idle after release = %d, want 3", got)
	}
}

func TestPoolCanHandle(t *testing.T) {
	pool, _, _, ids := newTestPool(t, &stubPort{})

	// ids[1] is unknown order; find the coder by skill probe across workers.
	var coderID string
	for _, id := range ids {
		if pool.CanHandle(id, []string{"go"}) {
			coderID = id
		}
	}
	if coderID == "" {
		t.Fatal("no worker matches skill go")
	}
	if pool.CanHandle(coderID, []string{"painting"}) {
		t.Error("unexpected match for unrelated skill")
	}
	if pool.CanHandle("unknown", []string{"go"}) {
		t.Error("unknown worker should not match")
	}
}

func TestPoolExecute(t *testing.T) {
	rs := &stubPort{executeFn: rawResponse(executionOutputJSON)}
	pool, _, _, ids := newTestPool(t, rs)
	ctx := context.Background()

	tsk := task.New("team-1", "Implement core", "write it", []string{"tests pass"}, []string{"go"})
	if err := pool.Assign(ctx, ids[0], tsk.ID); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	out, err := pool.Execute(ctx, ids[0], tsk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.TaskID != tsk.ID || out.WorkerID != ids[0] {
		t.Errorf("output identities = (%s, %s)", out.TaskID, out.WorkerID)
	}
	if len(out.Artifacts) != 1 || out.Artifacts[0] != "report.md" {
		t.Errorf("Artifacts = %v", out.Artifacts)
	}
	var result map[string]any
	if err := json.Unmarshal(out.Result, &result); err != nil {
		t.Fatalf("Result is not JSON: %v", err)
	}
}

func TestPoolExecuteWithoutAssignment(t *testing.T) {
	pool, _, _, ids := newTestPool(t, &stubPort{executeFn: rawResponse(executionOutputJSON)})

	tsk := task.New("team-1", "T", "d", nil, nil)
	_, err := pool.Execute(context.Background(), ids[0], tsk)
	var execErr *domain.TaskExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TaskExecutionError, got %v", err)
	}
}

func TestPoolReleaseAll(t *testing.T) {
	pool, _, _, ids := newTestPool(t, &stubPort{})
	ctx := context.Background()

	if err := pool.Assign(ctx, ids[0], "task-1"); err != nil {
		t.Fatal(err)
	}
	if err := pool.Assign(ctx, ids[1], "task-2"); err != nil {
		t.Fatal(err)
	}
	if err := pool.Block(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}

	pool.ReleaseAll(ctx)

	if got := len(pool.Idle()); got != 3 {
		t.Fatalf("idle after ReleaseAll = %d, want 3", got)
	}
}

func TestPoolStatusRequestMessage(t *testing.T) {
	pool, _, queue, ids := newTestPool(t, &stubPort{})
	ctx := context.Background()

	// Register a manager inbox to receive the report.
	bus := pool.bus
	var reports []message.AgentMessage
	cancel, err := bus.RegisterInbox(ctx, ManagerIdentity, func(_ context.Context, msg message.AgentMessage) error {
		reports = append(reports, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("RegisterInbox() error = %v", err)
	}
	defer cancel()

	req, err := message.New(ManagerIdentity, ids[0], message.TypeStatusRequest, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Send(ctx, req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(reports) != 1 {
		t.Fatalf("status reports = %d, want 1", len(reports))
	}
	if reports[0].Type != message.TypeStatusReport {
		t.Errorf("report type = %q", reports[0].Type)
	}
	if got := queue.count(messagequeue.SubjectAgentMessage + "." + ManagerIdentity); got != 1 {
		t.Errorf("manager inbox messages = %d, want 1", got)
	}
}
