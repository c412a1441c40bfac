package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/domain/team"
	"github.com/crewforge/crewd/internal/port/messagequeue"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memStore is an in-memory database.Store for tests.
type memStore struct {
	mu        sync.Mutex
	teams     map[string]team.Team
	workers   map[string]agent.Worker
	tasks     map[string]task.Task
	taskOrder []string
}

func newMemStore() *memStore {
	return &memStore{
		teams:   make(map[string]team.Team),
		workers: make(map[string]agent.Worker),
		tasks:   make(map[string]task.Task),
	}
}

func (m *memStore) SaveTeam(_ context.Context, t *team.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = *t
	return nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (*team.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (m *memStore) SaveWorker(_ context.Context, w *agent.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[w.ID] = *w
	return nil
}

func (m *memStore) GetWorker(_ context.Context, id string) (*agent.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := w
	return &cp, nil
}

func (m *memStore) ListWorkersByTeam(_ context.Context, teamID string) ([]agent.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []agent.Worker
	for _, w := range m.workers {
		if w.TeamID == teamID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SaveTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.tasks[t.ID]; !seen {
		m.taskOrder = append(m.taskOrder, t.ID)
	}
	m.tasks[t.ID] = *t
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (m *memStore) ListTasksByTeam(_ context.Context, teamID string) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for _, id := range m.taskOrder {
		if t := m.tasks[id]; t.TeamID == teamID {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeQueue is an in-memory messagequeue.Queue. Published messages are
// recorded and delivered synchronously to exact-subject subscribers.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	subs      map[string][]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		published: make(map[string][][]byte),
		subs:      make(map[string][]messagequeue.Handler),
	}
}

func (q *fakeQueue) Publish(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	q.published[subject] = append(q.published[subject], data)
	handlers := append([]messagequeue.Handler(nil), q.subs[subject]...)
	q.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, subject, data); err != nil {
			return err
		}
	}
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	q.subs[subject] = append(q.subs[subject], handler)
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.subs, subject)
		q.mu.Unlock()
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[subject])
}

// stubPort is a scriptable reasoning.Port.
type stubPort struct {
	analyzeFn   func(context.Context, reasoning.Request) (json.RawMessage, error)
	formFn      func(context.Context, reasoning.Request) (json.RawMessage, error)
	decomposeFn func(context.Context, reasoning.Request) (json.RawMessage, error)
	reviewFn    func(context.Context, reasoning.Request) (json.RawMessage, error)
	executeFn   func(context.Context, reasoning.Request) (json.RawMessage, error)
}

var errStubUnset = errors.New("stub op not configured")

func (s *stubPort) AnalyzeGoal(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	if s.analyzeFn == nil {
		return nil, errStubUnset
	}
	return s.analyzeFn(ctx, req)
}

func (s *stubPort) FormTeam(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	if s.formFn == nil {
		return nil, errStubUnset
	}
	return s.formFn(ctx, req)
}

func (s *stubPort) Decompose(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	if s.decomposeFn == nil {
		return nil, errStubUnset
	}
	return s.decomposeFn(ctx, req)
}

func (s *stubPort) Review(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	if s.reviewFn == nil {
		return nil, errStubUnset
	}
	return s.reviewFn(ctx, req)
}

func (s *stubPort) Execute(ctx context.Context, req reasoning.Request) (json.RawMessage, error) {
	if s.executeFn == nil {
		return nil, errStubUnset
	}
	return s.executeFn(ctx, req)
}

// fixed JSON fixtures shared by manager, scheduler, and engine tests.

const analysisJSON = `{
	"core_objective": "Ship the beta",
	"subtasks": ["research", "implement", "verify"],
	"required_specializations": ["Researcher", "Coder", "Tester"],
	"estimated_timeline_hours": 2,
	"potential_blockers": ["unclear requirements"],
	"success_criteria": ["all checks pass"]
}`

const threeWorkerSpecsJSON = `[
	{"specialization": "Researcher", "skills": ["research", "analysis"], "responsibilities": ["investigate"], "required_tools": ["search"]},
	{"specialization": "Coder", "skills": ["go", "coding"], "responsibilities": ["implement"], "required_tools": ["editor"]},
	{"specialization": "Tester", "skills": ["testing", "qa"], "responsibilities": ["verify"], "required_tools": ["runner"]}
]`

const executionOutputJSON = `{"result": {"summary": "done"}, "artifacts": ["report.md"], "logs": ["step 1 ok"]}`

func rawResponse(s string) func(context.Context, reasoning.Request) (json.RawMessage, error) {
	return func(context.Context, reasoning.Request) (json.RawMessage, error) {
		return json.RawMessage(s), nil
	}
}
