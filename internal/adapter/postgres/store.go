package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/agent"
	"github.com/crewforge/crewd/internal/domain/task"
	"github.com/crewforge/crewd/internal/domain/team"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

// pgTextArray converts a string slice to a pgx-compatible text array.
// nil slices become empty arrays to avoid SQL NULL.
func pgTextArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- Teams ---

// SaveTeam upserts a team record keyed by identity.
func (s *Store) SaveTeam(ctx context.Context, t *team.Team) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO teams (id, goal, status, worker_ids, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET goal = $2, status = $3, worker_ids = $4, version = teams.version + 1, updated_at = $7`,
		t.ID, t.Goal, t.Status, pgTextArray(t.WorkerIDs), t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save team %s: %w", t.ID, err)
	}
	return nil
}

// GetTeam loads a team record by identity.
func (s *Store) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, goal, status, worker_ids, version, created_at, updated_at
		 FROM teams WHERE id = $1`, id)

	var t team.Team
	err := row.Scan(&t.ID, &t.Goal, &t.Status, &t.WorkerIDs, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get team %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get team %s: %w", id, err)
	}
	return &t, nil
}

// --- Workers ---

// SaveWorker upserts a worker record keyed by identity.
func (s *Store) SaveWorker(ctx context.Context, w *agent.Worker) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workers (id, team_id, specialization, skills, responsibilities, required_tools,
		                      status, assigned_task_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE
		 SET status = $7, assigned_task_id = $8, version = workers.version + 1, updated_at = $11`,
		w.ID, w.TeamID, w.Specialization, pgTextArray(w.Skills), pgTextArray(w.Responsibilities),
		pgTextArray(w.RequiredTools), w.Status, w.AssignedTaskID, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save worker %s: %w", w.ID, err)
	}
	return nil
}

// GetWorker loads a worker record by identity.
func (s *Store) GetWorker(ctx context.Context, id string) (*agent.Worker, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, team_id, specialization, skills, responsibilities, required_tools,
		        status, assigned_task_id, version, created_at, updated_at
		 FROM workers WHERE id = $1`, id)

	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get worker %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get worker %s: %w", id, err)
	}
	return &w, nil
}

// ListWorkersByTeam returns all workers of a team, ordered by identity for
// deterministic dispatch scans.
func (s *Store) ListWorkersByTeam(ctx context.Context, teamID string) ([]agent.Worker, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, specialization, skills, responsibilities, required_tools,
		        status, assigned_task_id, version, created_at, updated_at
		 FROM workers WHERE team_id = $1 ORDER BY id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []agent.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(row scannable) (agent.Worker, error) {
	var w agent.Worker
	err := row.Scan(&w.ID, &w.TeamID, &w.Specialization, &w.Skills, &w.Responsibilities,
		&w.RequiredTools, &w.Status, &w.AssignedTaskID, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// --- Tasks ---

// SaveTask upserts a task record keyed by identity.
func (s *Store) SaveTask(ctx context.Context, t *task.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, team_id, title, description, acceptance_criteria, required_skills,
		                    status, assigned_worker_id, attempts, feedback, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE
		 SET status = $7, assigned_worker_id = $8, attempts = $9, feedback = $10,
		     version = tasks.version + 1, updated_at = $13`,
		t.ID, t.TeamID, t.Title, t.Description, pgTextArray(t.AcceptanceCriteria),
		pgTextArray(t.RequiredSkills), t.Status, t.AssignedWorkerID, t.Attempts,
		pgTextArray(t.Feedback), t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask loads a task record by identity.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, team_id, title, description, acceptance_criteria, required_skills,
		        status, assigned_worker_id, attempts, feedback, version, created_at, updated_at
		 FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

// ListTasksByTeam returns all tasks of a team in creation (decomposition) order.
func (s *Store) ListTasksByTeam(ctx context.Context, teamID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, title, description, acceptance_criteria, required_skills,
		        status, assigned_worker_id, attempts, feedback, version, created_at, updated_at
		 FROM tasks WHERE team_id = $1 ORDER BY created_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.TeamID, &t.Title, &t.Description, &t.AcceptanceCriteria,
		&t.RequiredSkills, &t.Status, &t.AssignedWorkerID, &t.Attempts, &t.Feedback,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}
