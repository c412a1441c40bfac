package logger

import (
	"context"
	"log/slog"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const (
	teamIDKey   contextKey = "team_id"
	workerIDKey contextKey = "worker_id"
	taskIDKey   contextKey = "task_id"
)

// WithTeamID returns a new context carrying the team ID.
func WithTeamID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, teamIDKey, id)
}

// WithWorkerID returns a new context carrying the worker ID.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// WithTaskID returns a new context carrying the task ID.
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TeamID extracts the team ID from the context, or "" if unset.
func TeamID(ctx context.Context) string {
	id, _ := ctx.Value(teamIDKey).(string)
	return id
}

// WorkerID extracts the worker ID from the context, or "" if unset.
func WorkerID(ctx context.Context) string {
	id, _ := ctx.Value(workerIDKey).(string)
	return id
}

// TaskID extracts the task ID from the context, or "" if unset.
func TaskID(ctx context.Context) string {
	id, _ := ctx.Value(taskIDKey).(string)
	return id
}

// FromContext returns the logger enriched with any orchestration IDs
// present on the context.
func FromContext(ctx context.Context, log *slog.Logger) *slog.Logger {
	if id := TeamID(ctx); id != "" {
		log = log.With("team_id", id)
	}
	if id := WorkerID(ctx); id != "" {
		log = log.With("worker_id", id)
	}
	if id := TaskID(ctx); id != "" {
		log = log.With("task_id", id)
	}
	return log
}
