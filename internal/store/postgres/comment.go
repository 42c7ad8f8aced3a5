package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kanbu/realtime/pkg/domain"
)

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO comments (id, task_id, author_id, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.TaskID, c.AuthorID, c.Body, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("commentRepo.Create: %w", err)
	}

	return nil
}

func (r *CommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	var c domain.Comment

	err := r.pool.QueryRow(ctx,
		`SELECT id, task_id, author_id, body, created_at, updated_at
		 FROM comments WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("commentRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("commentRepo.GetByID: %w", err)
	}

	return &c, nil
}

func (r *CommentRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Comment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, task_id, author_id, body, created_at, updated_at
		 FROM comments WHERE task_id = $1
		 ORDER BY created_at
		 LIMIT 1000`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("commentRepo.ListByTask: %w", err)
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("commentRepo.ListByTask: scan: %w", err)
		}
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("commentRepo.ListByTask: rows: %w", err)
	}

	return comments, nil
}

func (r *CommentRepo) Update(ctx context.Context, c *domain.Comment) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE comments SET body = $1, updated_at = now()
		 WHERE id = $2
		 RETURNING updated_at`,
		c.Body, c.ID,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("commentRepo.Update: %w", domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("commentRepo.Update: %w", err)
	}

	return nil
}

func (r *CommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("commentRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commentRepo.Delete: %w", domain.ErrNotFound)
	}

	return nil
}
