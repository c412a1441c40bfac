package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	crewdotel "github.com/crewforge/crewd/internal/adapter/otel"
	"github.com/crewforge/crewd/internal/config"
	"github.com/crewforge/crewd/internal/domain/event"
	"github.com/crewforge/crewd/internal/domain/message"
	"github.com/crewforge/crewd/internal/domain/review"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/logger"
	"github.com/crewforge/crewd/internal/port/database"
)

// Scheduler dispatches pending tasks to idle skill-matching workers and
// drives each assignment through execution and review to a terminal state.
// Tasks are dispatched FIFO; workers are scanned in ascending ID order.
type Scheduler struct {
	pool    *WorkerPool
	store   database.Store
	bus     *Bus
	manager *Manager
	cfg     config.Orchestrator
	log     *slog.Logger
	metrics *crewdotel.Metrics // optional

	mu      sync.Mutex
	tasks   map[string]*task.Task
	queue   []string // FIFO pending task IDs
	running int

	wake chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a Scheduler. metrics may be nil.
func NewScheduler(
	pool *WorkerPool,
	store database.Store,
	bus *Bus,
	manager *Manager,
	cfg config.Orchestrator,
	log *slog.Logger,
	metrics *crewdotel.Metrics,
) *Scheduler {
	return &Scheduler{
		pool:    pool,
		store:   store,
		bus:     bus,
		manager: manager,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		tasks:   make(map[string]*task.Task),
		wake:    make(chan struct{}, 1),
	}
}

// Load seeds the scheduler with pending tasks, preserving order.
func (s *Scheduler) Load(tasks []*task.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = t
		if t.Status == task.StatusPending {
			s.queue = append(s.queue, t.ID)
		}
	}
}

// Run dispatches until every task is terminal or the context is cancelled.
// On cancellation, in-flight tasks are failed and workers are released.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		s.dispatch(ctx)

		if s.settled() {
			s.wg.Wait()
			if s.settled() {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.failInFlight(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// settled reports whether no work remains: nothing queued, nothing running,
// and every known task terminal.
func (s *Scheduler) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 || s.running > 0 {
		return false
	}
	for _, t := range s.tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Snapshot returns the IDs of tasks still pending dispatch.
func (s *Scheduler) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queue))
	copy(out, s.queue)
	return out
}

// Failed reports whether any task ended in the failed state.
func (s *Scheduler) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Status == task.StatusFailed {
			return true
		}
	}
	return false
}

// dispatch scans the pending queue and assigns each dispatchable task to the
// first idle worker whose skills match. Tasks with no matching idle worker
// stay queued without emitting anything; later tasks may still dispatch.
func (s *Scheduler) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.queue[:0]
	for _, taskID := range s.queue {
		t := s.tasks[taskID]
		workerID := s.matchWorker(t)
		if workerID == "" {
			remaining = append(remaining, taskID)
			continue
		}
		if err := s.assign(ctx, t, workerID); err != nil {
			s.log.Error("assign failed", "task_id", taskID, "worker_id", workerID, "error", err)
			remaining = append(remaining, taskID)
			continue
		}
		s.running++
		s.wg.Add(1)
		go s.runTask(ctx, t.ID, workerID)
	}
	s.queue = append([]string(nil), remaining...)
}

// matchWorker returns the first idle worker (ascending ID) able to handle
// the task, or "".
func (s *Scheduler) matchWorker(t *task.Task) string {
	for _, id := range s.pool.Idle() {
		if s.pool.CanHandle(id, t.RequiredSkills) {
			return id
		}
	}
	return ""
}

// assign moves worker and task into their assigned states, persists both,
// and broadcasts task.assigned. Caller holds s.mu.
func (s *Scheduler) assign(ctx context.Context, t *task.Task, workerID string) error {
	if err := s.pool.Assign(ctx, workerID, t.ID); err != nil {
		return err
	}
	if err := t.Assign(workerID); err != nil {
		// Roll the worker back so it is not stranded in Working.
		if relErr := s.pool.Release(ctx, workerID); relErr != nil {
			s.log.Error("rollback release failed", "worker_id", workerID, "error", relErr)
		}
		return err
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		return err
	}

	ev, err := event.NewTaskAssigned(t.TeamID, t.ID, workerID)
	if err != nil {
		return err
	}
	if err := s.bus.PublishEvent(ctx, ev); err != nil {
		s.log.Warn("task.assigned publish failed", "task_id", t.ID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.TasksDispatched.Add(ctx, 1)
	}
	s.log.Info("task dispatched", "task_id", t.ID, "worker_id", workerID, "attempts", t.Attempts)
	return nil
}

// runTask drives one assignment through execution, review, and any revision
// rounds with the same worker until the task reaches a terminal state, times
// out, or exhausts its attempts.
func (s *Scheduler) runTask(ctx context.Context, taskID, workerID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
		s.poke()
	}()

	for {
		t := s.taskSnapshot(taskID)

		execCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
		execCtx = logger.WithWorkerID(logger.WithTaskID(execCtx, taskID), workerID)
		execCtx, span := crewdotel.StartTaskSpan(execCtx, taskID, workerID, t.TeamID)
		start := time.Now()
		out, err := s.pool.Execute(execCtx, workerID, &t)
		span.End()
		cancel()

		if s.metrics != nil {
			s.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds())
			s.metrics.ReasoningCalls.Add(ctx, 1)
		}

		if err != nil {
			if ctx.Err() != nil {
				return // cancellation is settled by failInFlight
			}
			if errors.Is(err, context.DeadlineExceeded) {
				s.handleTimeout(context.WithoutCancel(ctx), taskID, workerID)
				return
			}
			if s.handleAttemptError(ctx, taskID, workerID, "execution error: "+err.Error()) {
				continue
			}
			return
		}

		d, err := s.review(ctx, taskID, out)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.handleAttemptError(ctx, taskID, workerID, "review error: "+err.Error()) {
				continue
			}
			return
		}

		switch d.Outcome {
		case review.OutcomeApproved:
			s.applyApproval(context.WithoutCancel(ctx), taskID, workerID)
			return
		case review.OutcomeRevisionRequested:
			if s.applyRevision(ctx, taskID, workerID, d.Feedback) {
				continue
			}
			return
		case review.OutcomeRejected:
			s.applyRejection(context.WithoutCancel(ctx), taskID, workerID, d.Reason)
			return
		}
	}
}

// review transitions the task to in_review, persists it, and asks the
// manager for a decision.
func (s *Scheduler) review(ctx context.Context, taskID string, out *task.Output) (review.Decision, error) {
	s.mu.Lock()
	t := s.tasks[taskID]
	if err := t.Transition(task.StatusInReview); err != nil {
		s.mu.Unlock()
		return review.Decision{}, err
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.mu.Unlock()
		return review.Decision{}, err
	}
	snapshot := *t
	s.mu.Unlock()

	reviewCtx, span := crewdotel.StartReviewSpan(ctx, taskID)
	defer span.End()
	return s.manager.ReviewOutput(reviewCtx, &snapshot, out)
}

// applyApproval finalizes an approved task. Approving an already approved
// task is a no-op: no state change, no duplicate event.
func (s *Scheduler) applyApproval(ctx context.Context, taskID, workerID string) {
	s.mu.Lock()
	t := s.tasks[taskID]
	if t.Status == task.StatusApproved {
		s.mu.Unlock()
		return
	}
	if err := t.Transition(task.StatusApproved); err != nil {
		s.mu.Unlock()
		s.log.Error("approve transition failed", "task_id", taskID, "error", err)
		return
	}
	teamID := t.TeamID
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.log.Error("save approved task failed", "task_id", taskID, "error", err)
	}
	s.mu.Unlock()

	if err := s.pool.Release(ctx, workerID); err != nil {
		s.log.Error("release after approval failed", "worker_id", workerID, "error", err)
	}

	ev, err := event.NewTaskCompleted(teamID, taskID, workerID)
	if err == nil {
		if pubErr := s.bus.PublishEvent(ctx, ev); pubErr != nil {
			s.log.Warn("task.completed publish failed", "task_id", taskID, "error", pubErr)
		}
	}
	if s.metrics != nil {
		s.metrics.TasksApproved.Add(ctx, 1)
	}
	s.log.Info("task approved", "task_id", taskID, "worker_id", workerID)
}

// applyRevision records feedback and re-queues the task to the same worker.
// Returns true if the worker should run another round; false when the
// attempt cap converts the revision into a forced rejection.
func (s *Scheduler) applyRevision(ctx context.Context, taskID, workerID, feedback string) bool {
	s.mu.Lock()
	t := s.tasks[taskID]
	t.RecordFeedback(feedback)
	attempts := t.Attempts
	teamID := t.TeamID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Revisions.Add(ctx, 1)
	}

	if attempts >= s.cfg.MaxAttempts {
		s.log.Warn("attempt cap reached, rejecting", "task_id", taskID, "attempts", attempts)
		s.applyRejection(context.WithoutCancel(ctx), taskID, workerID,
			"maximum revision attempts reached")
		return false
	}

	s.mu.Lock()
	if err := t.Transition(task.StatusAssigned); err != nil {
		s.mu.Unlock()
		s.log.Error("revision transition failed", "task_id", taskID, "error", err)
		return false
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.log.Error("save revised task failed", "task_id", taskID, "error", err)
	}
	s.mu.Unlock()

	msg, err := message.New(ManagerIdentity, workerID, message.TypeTaskFeedback, message.TaskFeedbackPayload{
		TaskID:   taskID,
		Feedback: feedback,
		Attempt:  attempts,
	})
	if err == nil {
		if sendErr := s.bus.Send(ctx, msg); sendErr != nil {
			s.log.Warn("feedback delivery failed", "to", workerID, "error", sendErr)
		}
	}

	s.log.Info("revision requested", "task_id", taskID, "worker_id", workerID,
		"attempts", attempts, "team_id", teamID)
	return true
}

// applyRejection fails the task. The worker is blocked or released per
// configuration.
func (s *Scheduler) applyRejection(ctx context.Context, taskID, workerID, reason string) {
	s.mu.Lock()
	t := s.tasks[taskID]
	if err := t.Transition(task.StatusFailed); err != nil {
		s.mu.Unlock()
		s.log.Error("reject transition failed", "task_id", taskID, "error", err)
		return
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.log.Error("save rejected task failed", "task_id", taskID, "error", err)
	}
	s.mu.Unlock()

	if s.cfg.BlockOnReject {
		if err := s.pool.Block(ctx, workerID); err != nil {
			s.log.Error("block after rejection failed", "worker_id", workerID, "error", err)
		}
	} else {
		if err := s.pool.Release(ctx, workerID); err != nil {
			s.log.Error("release after rejection failed", "worker_id", workerID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.TasksFailed.Add(ctx, 1)
	}
	s.log.Warn("task rejected", "task_id", taskID, "worker_id", workerID, "reason", reason)
}

// handleTimeout returns a timed-out task to the pending queue so any idle
// worker can pick it up, and frees the worker.
func (s *Scheduler) handleTimeout(ctx context.Context, taskID, workerID string) {
	s.mu.Lock()
	t := s.tasks[taskID]
	t.RecordFeedback("execution timed out after " + s.cfg.TaskTimeout.String())
	attempts := t.Attempts
	s.mu.Unlock()

	if attempts >= s.cfg.MaxAttempts {
		s.applyRejection(ctx, taskID, workerID, "maximum attempts reached after timeout")
		return
	}

	s.mu.Lock()
	if err := t.Requeue(); err != nil {
		s.mu.Unlock()
		s.log.Error("timeout requeue failed", "task_id", taskID, "error", err)
		return
	}
	if err := s.store.SaveTask(ctx, t); err != nil {
		s.log.Error("save requeued task failed", "task_id", taskID, "error", err)
	}
	s.queue = append(s.queue, taskID)
	s.mu.Unlock()

	if err := s.pool.Release(ctx, workerID); err != nil {
		s.log.Error("release after timeout failed", "worker_id", workerID, "error", err)
	}
	s.log.Warn("task timed out, requeued", "task_id", taskID, "worker_id", workerID, "attempts", attempts)
	s.poke()
}

// handleAttemptError counts a failed execution or review round. The task
// goes back to pending for any worker if attempts remain; otherwise it
// fails. Returns true only when the same worker should retry immediately,
// which never happens here (the retry goes through the queue).
func (s *Scheduler) handleAttemptError(ctx context.Context, taskID, workerID, reason string) bool {
	s.mu.Lock()
	t := s.tasks[taskID]
	t.RecordFeedback(reason)
	attempts := t.Attempts
	s.mu.Unlock()

	if attempts >= s.cfg.MaxAttempts {
		s.applyRejection(context.WithoutCancel(ctx), taskID, workerID, reason)
		return false
	}

	s.mu.Lock()
	// A review error leaves the task in_review; step back to assigned so the
	// requeue transition is legal.
	if t.Status == task.StatusInReview {
		if err := t.Transition(task.StatusAssigned); err != nil {
			s.mu.Unlock()
			s.log.Error("error requeue failed", "task_id", taskID, "error", err)
			return false
		}
	}
	err := t.Requeue()
	if err == nil {
		if saveErr := s.store.SaveTask(ctx, t); saveErr != nil {
			s.log.Error("save requeued task failed", "task_id", taskID, "error", saveErr)
		}
		s.queue = append(s.queue, taskID)
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Error("error requeue failed", "task_id", taskID, "error", err)
		return false
	}

	if relErr := s.pool.Release(ctx, workerID); relErr != nil {
		s.log.Error("release after error failed", "worker_id", workerID, "error", relErr)
	}
	s.log.Warn("attempt failed, requeued", "task_id", taskID, "attempts", attempts, "reason", truncate(reason, 200))
	s.poke()
	return false
}

// failInFlight settles cancellation: every assigned or in_review task is
// failed and all workers are returned to idle. Pending tasks stay pending;
// they are simply never dispatched again.
func (s *Scheduler) failInFlight(ctx context.Context) {
	s.mu.Lock()
	for _, t := range s.tasks {
		if t.Status == task.StatusAssigned || t.Status == task.StatusInReview {
			if err := t.Transition(task.StatusFailed); err != nil {
				s.log.Error("cancel transition failed", "task_id", t.ID, "error", err)
				continue
			}
			if err := s.store.SaveTask(ctx, t); err != nil {
				s.log.Error("save cancelled task failed", "task_id", t.ID, "error", err)
			}
			if s.metrics != nil {
				s.metrics.TasksFailed.Add(ctx, 1)
			}
		}
	}
	s.mu.Unlock()

	s.pool.ReleaseAll(ctx)
	s.log.Info("in-flight work cancelled")
}

// taskSnapshot returns a copy of the task for lock-free reads.
func (s *Scheduler) taskSnapshot(taskID string) task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[taskID]
}

// poke nudges the dispatch loop without waiting for the ticker.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
