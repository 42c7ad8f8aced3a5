package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/kanbu/realtime/internal/server/middleware"
	"github.com/kanbu/realtime/pkg/domain"
)

type CreateTaskInput struct {
	Body struct {
		ProjectID   uuid.UUID `json:"projectId" doc:"Project ID"`
		ColumnID    int64     `json:"columnId" doc:"Board column"`
		Position    int       `json:"position,omitempty" minimum:"0" doc:"Position within the column"`
		Title       string    `json:"title" minLength:"1" maxLength:"500" doc:"Task title"`
		Description string    `json:"description,omitempty" doc:"Task description"`
	}
}

type TaskOutput struct {
	Body *domain.Task
}

type ListTasksInput struct {
	ProjectID uuid.UUID `query:"project_id" required:"true" doc:"Project ID"`
}

type ListTasksOutput struct {
	Body []*domain.Task
}

type GetTaskInput struct {
	ID uuid.UUID `path:"id" doc:"Task ID"`
}

type UpdateTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Title       string     `json:"title,omitempty" maxLength:"500" doc:"Task title"`
		Description *string    `json:"description,omitempty" doc:"Task description"`
		AssignedTo  *uuid.UUID `json:"assignedTo,omitempty" doc:"Assigned user ID"`
		// Version marker captured at edit-start. A stale value means
		// another save landed in between and yields 409.
		ExpectedUpdatedAt time.Time `json:"expectedUpdatedAt" doc:"updatedAt observed when editing began"`
	}
}

type MoveTaskInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		ToColumnID        int64     `json:"toColumnId" doc:"Destination column"`
		ToPosition        int       `json:"toPosition" minimum:"0" doc:"Destination position"`
		ExpectedUpdatedAt time.Time `json:"expectedUpdatedAt" doc:"updatedAt observed before the move"`
	}
}

type DeleteTaskInput struct {
	ID                uuid.UUID `path:"id" doc:"Task ID"`
	ExpectedUpdatedAt time.Time `query:"expected_updated_at" required:"true" doc:"updatedAt observed before the delete"`
}

type TagInput struct {
	ID   uuid.UUID `path:"id" doc:"Task ID"`
	Body struct {
		Tag string `json:"tag" minLength:"1" maxLength:"64" doc:"Tag label"`
	}
}

type RemoveTagInput struct {
	ID  uuid.UUID `path:"id" doc:"Task ID"`
	Tag string    `path:"tag" doc:"Tag label"`
}

func RegisterTaskRoutes(api huma.API, store DataStore, events Broadcaster) {
	huma.Register(api, huma.Operation{
		OperationID: "create-task",
		Method:      http.MethodPost,
		Path:        "/tasks",
		Summary:     "Create a new task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		now := time.Now()
		t := &domain.Task{
			ID:          uuid.New(),
			ProjectID:   input.Body.ProjectID,
			ColumnID:    input.Body.ColumnID,
			Position:    input.Body.Position,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			CreatedBy:   identity.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := store.Tasks().Create(ctx, t); err != nil {
			return nil, huma.Error500InternalServerError("failed to create task", err)
		}

		publish(ctx, events, domain.EventTaskCreated, identity,
			domain.TaskPayload{TaskID: t.ID, Task: t},
			domain.ProjectRoom(t.ProjectID))

		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks for a project",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		tasks, err := store.Tasks().ListByProject(ctx, input.ProjectID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list tasks", err)
		}

		return &ListTasksOutput{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task by ID",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *GetTaskInput) (*TaskOutput, error) {
		t, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		return &TaskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Update a task (optimistic locking)",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *UpdateTaskInput) (*TaskOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		if input.Body.Title != "" {
			existing.Title = input.Body.Title
		}
		if input.Body.Description != nil {
			existing.Description = *input.Body.Description
		}
		if input.Body.AssignedTo != nil {
			existing.AssignedTo = input.Body.AssignedTo
		}

		err = store.Tasks().Update(ctx, existing, input.Body.ExpectedUpdatedAt)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, huma.Error409Conflict("task was modified by someone else; reload before saving")
			}
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to update task", err)
		}

		publish(ctx, events, domain.EventTaskUpdated, identity,
			domain.TaskPayload{TaskID: existing.ID, Task: existing},
			domain.ProjectRoom(existing.ProjectID), domain.TaskRoom(existing.ID))

		return &TaskOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/move",
		Summary:     "Move a task to a column and position",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *MoveTaskInput) (*TaskOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		before, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		moved, err := store.Tasks().Move(ctx, input.ID, input.Body.ToColumnID, input.Body.ToPosition, input.Body.ExpectedUpdatedAt)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, huma.Error409Conflict("task was modified by someone else; reload before moving")
			}
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to move task", err)
		}

		publish(ctx, events, domain.EventTaskMoved, identity,
			domain.TaskMovedPayload{
				TaskID:       moved.ID,
				FromColumnID: before.ColumnID,
				ToColumnID:   moved.ColumnID,
				ToPosition:   moved.Position,
			},
			domain.ProjectRoom(moved.ProjectID))

		return &TaskOutput{Body: moved}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete a task (optimistic locking)",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *DeleteTaskInput) (*struct{}, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		err = store.Tasks().Delete(ctx, input.ID, input.ExpectedUpdatedAt)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return nil, huma.Error409Conflict("task was modified by someone else; reload before deleting")
			}
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete task", err)
		}

		publish(ctx, events, domain.EventTaskDeleted, identity,
			domain.TaskPayload{TaskID: existing.ID},
			domain.ProjectRoom(existing.ProjectID), domain.TaskRoom(existing.ID))

		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-tag",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/tags",
		Summary:     "Add a tag to a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *TagInput) (*struct{}, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		if err := store.Tasks().AddTag(ctx, input.ID, input.Body.Tag); err != nil {
			return nil, huma.Error500InternalServerError("failed to add tag", err)
		}

		publish(ctx, events, domain.EventTagAdded, identity,
			domain.TagPayload{TaskID: input.ID, Tag: input.Body.Tag},
			domain.ProjectRoom(existing.ProjectID), domain.TaskRoom(input.ID))

		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-tag",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/tags/{tag}",
		Summary:     "Remove a tag from a task",
		Tags:        []string{"Tasks"},
	}, func(ctx context.Context, input *RemoveTagInput) (*struct{}, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Tasks().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		if err := store.Tasks().RemoveTag(ctx, input.ID, input.Tag); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to remove tag", err)
		}

		publish(ctx, events, domain.EventTagRemoved, identity,
			domain.TagPayload{TaskID: input.ID, Tag: input.Tag},
			domain.ProjectRoom(existing.ProjectID), domain.TaskRoom(input.ID))

		return nil, nil
	})
}
