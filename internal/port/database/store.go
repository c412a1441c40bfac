// Package database defines the persistence port (interface). The engine
// treats it as a transactional key-value store over team, worker, and task
// records; the backing schema is owned by the adapter.
package database

import (
	"context"

	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/domain/team"
)

// Store is the port interface for persisting orchestration records.
type Store interface {
	// Teams
	SaveTeam(ctx context.Context, t *team.Team) error
	GetTeam(ctx context.Context, id string) (*team.Team, error)

	// Workers
	SaveWorker(ctx context.Context, w *agent.Worker) error
	GetWorker(ctx context.Context, id string) (*agent.Worker, error)
	ListWorkersByTeam(ctx context.Context, teamID string) ([]agent.Worker, error)

	// Tasks
	SaveTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasksByTeam(ctx context.Context, teamID string) ([]task.Task, error)
}
