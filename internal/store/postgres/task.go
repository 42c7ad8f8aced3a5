package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbu/realtime/pkg/domain"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, project_id, column_id, position, title, description, tags, assigned_to, created_by, created_at, updated_at`

func (r *TaskRepo) Create(ctx context.Context, t *domain.Task) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ProjectID, t.ColumnID, t.Position, t.Title, t.Description,
		t.Tags, t.AssignedTo, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Create: %w", err)
	}

	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	var t domain.Task

	err := r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&t.ID, &t.ProjectID, &t.ColumnID, &t.Position, &t.Title, &t.Description,
		&t.Tags, &t.AssignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("taskRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("taskRepo.GetByID: %w", err)
	}

	return &t, nil
}

func (r *TaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE project_id = $1
		 ORDER BY column_id, position
		 LIMIT 1000`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.ListByProject: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.ColumnID, &t.Position, &t.Title, &t.Description,
			&t.Tags, &t.AssignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("taskRepo.ListByProject: scan: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("taskRepo.ListByProject: rows: %w", err)
	}

	return tasks, nil
}

// Update rewrites the editable fields. The write only applies when the
// stored updated_at still equals expected; otherwise another save landed
// first and the caller gets ErrVersionConflict.
func (r *TaskRepo) Update(ctx context.Context, t *domain.Task, expected time.Time) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE tasks SET title = $1, description = $2, assigned_to = $3, updated_at = now()
		 WHERE id = $4 AND updated_at = $5
		 RETURNING updated_at`,
		t.Title, t.Description, t.AssignedTo, t.ID, expected,
	).Scan(&t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.versionError(ctx, "taskRepo.Update", t.ID)
	}
	if err != nil {
		return fmt.Errorf("taskRepo.Update: %w", err)
	}

	return nil
}

// Move relocates a task to a column and position, shifting neighbours so
// positions stay dense. Runs in one transaction; the version guard works
// the same as Update.
func (r *TaskRepo) Move(ctx context.Context, id uuid.UUID, toColumnID int64, toPosition int, expected time.Time) (*domain.Task, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.Move: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var t domain.Task
	err = tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(
		&t.ID, &t.ProjectID, &t.ColumnID, &t.Position, &t.Title, &t.Description,
		&t.Tags, &t.AssignedTo, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("taskRepo.Move: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("taskRepo.Move: %w", err)
	}

	if !t.UpdatedAt.Equal(expected) {
		return nil, fmt.Errorf("taskRepo.Move: %w", domain.ErrVersionConflict)
	}

	// Close the gap in the source column.
	_, err = tx.Exec(ctx,
		`UPDATE tasks SET position = position - 1
		 WHERE project_id = $1 AND column_id = $2 AND position > $3`,
		t.ProjectID, t.ColumnID, t.Position,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.Move: shift source: %w", err)
	}

	// Open a slot in the destination column.
	_, err = tx.Exec(ctx,
		`UPDATE tasks SET position = position + 1
		 WHERE project_id = $1 AND column_id = $2 AND position >= $3 AND id <> $4`,
		t.ProjectID, toColumnID, toPosition, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.Move: shift destination: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE tasks SET column_id = $1, position = $2, updated_at = now()
		 WHERE id = $3
		 RETURNING updated_at`,
		toColumnID, toPosition, t.ID,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("taskRepo.Move: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("taskRepo.Move: commit: %w", err)
	}

	t.ColumnID = toColumnID
	t.Position = toPosition

	return &t, nil
}

func (r *TaskRepo) Delete(ctx context.Context, id uuid.UUID, expected time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1 AND updated_at = $2`,
		id, expected,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.versionError(ctx, "taskRepo.Delete", id)
	}

	return nil
}

func (r *TaskRepo) AddTag(ctx context.Context, id uuid.UUID, tag string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tasks SET tags = array_append(tags, $1), updated_at = now()
		 WHERE id = $2 AND NOT (tags @> ARRAY[$1])`,
		tag, id,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.AddTag: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		// Already tagged, or missing. Adding an existing tag is a no-op.
		if _, err := r.GetByID(ctx, id); err != nil {
			return fmt.Errorf("taskRepo.AddTag: %w", domain.ErrNotFound)
		}
	}

	return nil
}

func (r *TaskRepo) RemoveTag(ctx context.Context, id uuid.UUID, tag string) error {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE tasks SET tags = array_remove(tags, $1), updated_at = now()
		 WHERE id = $2`,
		tag, id,
	)
	if err != nil {
		return fmt.Errorf("taskRepo.RemoveTag: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("taskRepo.RemoveTag: %w", domain.ErrNotFound)
	}

	return nil
}

// versionError distinguishes "row gone" from "row moved on" after a
// guarded write matched nothing.
func (r *TaskRepo) versionError(ctx context.Context, caller string, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", caller, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", caller, domain.ErrVersionConflict)
}
