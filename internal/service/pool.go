package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/event"
	"github.com/crewforge/crewd/internal/domain/message"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/logger"
	"github.com/crewforge/crewd/internal/port/database"
	"github.com/crewforge/crewd/internal/port/reasoning"
)

// WorkerPool owns the live workers of one team. All mutations of a single
// worker are serialized through its handle mutex; concurrent operations on
// distinct workers proceed independently.
type WorkerPool struct {
	store   database.Store
	bus     *Bus
	rs      reasoning.Port
	prompts *prompt.Library
	log     *slog.Logger

	mu      sync.RWMutex
	handles map[string]*workerHandle
	inboxes []func()
}

// workerHandle pairs a worker with the mutex that serializes its mutations.
type workerHandle struct {
	mu sync.Mutex
	w  *agent.Worker
}

// NewWorkerPool creates an empty pool.
func NewWorkerPool(store database.Store, bus *Bus, rs reasoning.Port, prompts *prompt.Library, log *slog.Logger) *WorkerPool {
	return &WorkerPool{
		store:   store,
		bus:     bus,
		rs:      rs,
		prompts: prompts,
		log:     log,
		handles: make(map[string]*workerHandle),
	}
}

// Spawn instantiates one worker per spec, persists them, and broadcasts a
// worker.created event for each. Returns the worker IDs in creation order.
func (p *WorkerPool) Spawn(ctx context.Context, teamID string, specs []agent.WorkerSpec) ([]string, error) {
	ids := make([]string, 0, len(specs))
	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, fmt.Errorf("worker spec %d: %w", i, err)
		}

		w := agent.FromSpec(teamID, specs[i])
		if err := p.store.SaveWorker(ctx, w); err != nil {
			return nil, fmt.Errorf("save worker: %w", err)
		}

		p.mu.Lock()
		p.handles[w.ID] = &workerHandle{w: w}
		p.mu.Unlock()

		cancelInbox, err := p.bus.RegisterInbox(ctx, w.ID, p.inboxHandler(w.ID))
		if err != nil {
			return nil, fmt.Errorf("register inbox: %w", err)
		}
		p.mu.Lock()
		p.inboxes = append(p.inboxes, cancelInbox)
		p.mu.Unlock()

		ev, err := event.NewWorkerCreated(teamID, w.ID, string(w.Specialization))
		if err != nil {
			return nil, err
		}
		if err := p.bus.PublishEvent(ctx, ev); err != nil {
			return nil, err
		}

		p.log.Info("worker spawned",
			"worker_id", w.ID,
			"team_id", teamID,
			"specialization", string(w.Specialization),
		)
		ids = append(ids, w.ID)
	}
	return ids, nil
}

// Get returns a snapshot copy of the worker, or ErrAgentNotFound.
func (p *WorkerPool) Get(id string) (agent.Worker, error) {
	h, err := p.handle(id)
	if err != nil {
		return agent.Worker{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.w, nil
}

// Idle returns the IDs of all idle workers in ascending ID order, so that
// dispatch scans are deterministic.
func (p *WorkerPool) Idle() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var ids []string
	for id, h := range p.handles {
		h.mu.Lock()
		if h.w.Status == agent.StatusIdle {
			ids = append(ids, id)
		}
		h.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// CanHandle reports whether the worker's skills match the task's required
// skills. Unknown workers cannot handle anything.
func (p *WorkerPool) CanHandle(workerID string, requiredSkills []string) bool {
	h, err := p.handle(workerID)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.w.CanHandle(requiredSkills)
}

// Assign moves the worker to Working on the given task and persists it.
func (p *WorkerPool) Assign(ctx context.Context, workerID, taskID string) error {
	return p.mutate(ctx, workerID, func(w *agent.Worker) error {
		return w.AssignTask(taskID)
	})
}

// Release returns the worker to Idle and persists it.
func (p *WorkerPool) Release(ctx context.Context, workerID string) error {
	return p.mutate(ctx, workerID, func(w *agent.Worker) error {
		return w.Release()
	})
}

// Block marks the worker Blocked and persists it.
func (p *WorkerPool) Block(ctx context.Context, workerID string) error {
	return p.mutate(ctx, workerID, func(w *agent.Worker) error {
		return w.Block()
	})
}

// ReleaseAll forces every non-idle worker back to Idle. Used on cancellation.
// Blocked workers are unblocked first; errors on individual workers are
// logged and skipped so that cancellation always completes.
func (p *WorkerPool) ReleaseAll(ctx context.Context) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		err := p.mutate(ctx, id, func(w *agent.Worker) error {
			if w.Status == agent.StatusIdle {
				return nil
			}
			return w.Release()
		})
		if err != nil {
			p.log.Warn("release on cancel failed", "worker_id", id, "error", err)
		}
	}
}

// Execute runs the worker's assigned task through the reasoning capability
// and returns the parsed output. The worker must hold the assignment.
func (p *WorkerPool) Execute(ctx context.Context, workerID string, tsk *task.Task) (*task.Output, error) {
	h, err := p.handle(workerID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.w.AssignedTaskID != tsk.ID {
		h.mu.Unlock()
		return nil, &domain.TaskExecutionError{
			Reason: fmt.Sprintf("worker %s is not assigned task %s", workerID, tsk.ID),
		}
	}
	specialization := string(h.w.Specialization)
	h.mu.Unlock()

	user, err := p.prompts.TaskExecution.Render(map[string]string{
		"specialization":      specialization,
		"title":               tsk.Title,
		"description":         tsk.Description,
		"acceptance_criteria": joinList(tsk.AcceptanceCriteria),
		"feedback":            joinList(tsk.Feedback),
	})
	if err != nil {
		return nil, err
	}
	system, err := renderSystem(p.prompts.TaskExecution.System, specialization)
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, p.log).Debug("executing task", "attempts", tsk.Attempts)
	raw, err := p.rs.Execute(ctx, reasoning.Request{System: system, User: user})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Result    json.RawMessage `json:"result"`
		Artifacts []string        `json:"artifacts"`
		Logs      []string        `json:"logs"`
	}
	if err := json.Unmarshal([]byte(extractJSON(string(raw))), &parsed); err != nil {
		return nil, &domain.JSONError{Op: "execute", Err: fmt.Errorf("%w (content: %s)", err, truncate(string(raw), 200))}
	}

	return &task.Output{
		TaskID:    tsk.ID,
		WorkerID:  workerID,
		Result:    parsed.Result,
		Artifacts: parsed.Artifacts,
		Logs:      parsed.Logs,
	}, nil
}

// Progress returns the diagnostic snapshot of every worker, sorted by ID.
func (p *WorkerPool) Progress() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		h, err := p.handle(id)
		if err != nil {
			continue
		}
		h.mu.Lock()
		lines = append(lines, h.w.Progress())
		h.mu.Unlock()
	}
	return lines
}

// inboxHandler processes point-to-point messages addressed to a worker.
// Feedback is informational here (the scheduler re-queues the task itself);
// status requests are answered with a status_report to the sender.
func (p *WorkerPool) inboxHandler(workerID string) InboxHandler {
	return func(ctx context.Context, msg message.AgentMessage) error {
		switch msg.Type {
		case message.TypeTaskFeedback:
			var fb message.TaskFeedbackPayload
			if err := json.Unmarshal(msg.Payload, &fb); err != nil {
				return fmt.Errorf("decode feedback: %w", err)
			}
			p.log.Info("feedback received",
				"worker_id", workerID, "task_id", fb.TaskID, "attempt", fb.Attempt)
			return nil

		case message.TypeStatusRequest:
			w, err := p.Get(workerID)
			if err != nil {
				return err
			}
			report, err := message.New(workerID, msg.From, message.TypeStatusReport,
				map[string]string{"status": string(w.Status), "task_id": w.AssignedTaskID})
			if err != nil {
				return err
			}
			return p.bus.Send(ctx, report)

		default:
			p.log.Warn("unhandled message", "worker_id", workerID, "type", string(msg.Type))
			return nil
		}
	}
}

// Close cancels all worker inbox subscriptions.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	cancels := p.inboxes
	p.inboxes = nil
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (p *WorkerPool) handle(id string) (*workerHandle, error) {
	p.mu.RLock()
	h, ok := p.handles[id]
	p.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return h, nil
}

// mutate applies fn to the worker under its handle lock and persists the
// result on success.
func (p *WorkerPool) mutate(ctx context.Context, id string, fn func(*agent.Worker) error) error {
	h, err := p.handle(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := fn(h.w); err != nil {
		return err
	}
	if err := p.store.SaveWorker(ctx, h.w); err != nil {
		return fmt.Errorf("save worker: %w", err)
	}
	return nil
}

// renderSystem substitutes the specialization placeholder in an execution
// system prompt.
func renderSystem(system, specialization string) (string, error) {
	t := prompt.Template{Name: "system", Version: "inline", System: "-", User: system}
	return t.Render(map[string]string{"specialization": specialization})
}
