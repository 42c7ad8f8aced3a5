package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"projectId"`
	ColumnID    int64      `json:"columnId"`
	Position    int        `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	AssignedTo  *uuid.UUID `json:"assignedTo,omitempty"`
	CreatedBy   uuid.UUID  `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	// UpdatedAt doubles as the version marker for save-time conflict
	// detection: a mutation carrying a stale value is rejected.
	UpdatedAt time.Time `json:"updatedAt"`
}

type Comment struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"taskId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Subtask struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"taskId"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskRepository is the authoritative mutation backend the sync layer
// consumes. Update, Move and Delete are version-guarded: they fail with
// ErrVersionConflict when the stored UpdatedAt differs from expected.
type TaskRepository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*Task, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Task, error)
	Update(ctx context.Context, t *Task, expected time.Time) error
	Move(ctx context.Context, id uuid.UUID, toColumnID int64, toPosition int, expected time.Time) (*Task, error)
	Delete(ctx context.Context, id uuid.UUID, expected time.Time) error
	AddTag(ctx context.Context, id uuid.UUID, tag string) error
	RemoveTag(ctx context.Context, id uuid.UUID, tag string) error
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*Comment, error)
	Update(ctx context.Context, c *Comment) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SubtaskRepository interface {
	Create(ctx context.Context, s *Subtask) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*Subtask, error)
	Update(ctx context.Context, s *Subtask) error
	Delete(ctx context.Context, id uuid.UUID) error
}
