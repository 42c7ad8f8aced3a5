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

type CreateSubtaskInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	Body   struct {
		Title    string `json:"title" minLength:"1" maxLength:"500" doc:"Subtask title"`
		Position int    `json:"position,omitempty" minimum:"0" doc:"Position within the checklist"`
	}
}

type SubtaskOutput struct {
	Body *domain.Subtask
}

type ListSubtasksInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
}

type ListSubtasksOutput struct {
	Body []*domain.Subtask
}

type UpdateSubtaskInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	ID     uuid.UUID `path:"id" doc:"Subtask ID"`
	Body   struct {
		Title string `json:"title,omitempty" maxLength:"500" doc:"Subtask title"`
		Done  *bool  `json:"done,omitempty" doc:"Completion state"`
	}
}

type DeleteSubtaskInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	ID     uuid.UUID `path:"id" doc:"Subtask ID"`
}

func RegisterSubtaskRoutes(api huma.API, store DataStore, events Broadcaster) {
	huma.Register(api, huma.Operation{
		OperationID: "create-subtask",
		Method:      http.MethodPost,
		Path:        "/tasks/{taskId}/subtasks",
		Summary:     "Add a subtask to a task",
		Tags:        []string{"Subtasks"},
	}, func(ctx context.Context, input *CreateSubtaskInput) (*SubtaskOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		if _, err := store.Tasks().GetByID(ctx, input.TaskID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("task not found")
			}
			return nil, huma.Error500InternalServerError("failed to get task", err)
		}

		now := time.Now()
		s := &domain.Subtask{
			ID:        uuid.New(),
			TaskID:    input.TaskID,
			Title:     input.Body.Title,
			Position:  input.Body.Position,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := store.Subtasks().Create(ctx, s); err != nil {
			return nil, huma.Error500InternalServerError("failed to create subtask", err)
		}

		publish(ctx, events, domain.EventSubtaskCreated, identity,
			domain.SubtaskPayload{TaskID: s.TaskID, SubtaskID: s.ID, Subtask: s},
			domain.TaskRoom(s.TaskID))

		return &SubtaskOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{taskId}/subtasks",
		Summary:     "List subtasks of a task",
		Tags:        []string{"Subtasks"},
	}, func(ctx context.Context, input *ListSubtasksInput) (*ListSubtasksOutput, error) {
		subtasks, err := store.Subtasks().ListByTask(ctx, input.TaskID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list subtasks", err)
		}

		return &ListSubtasksOutput{Body: subtasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-subtask",
		Method:      http.MethodPut,
		Path:        "/tasks/{taskId}/subtasks/{id}",
		Summary:     "Update a subtask",
		Tags:        []string{"Subtasks"},
	}, func(ctx context.Context, input *UpdateSubtaskInput) (*SubtaskOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		subtasks, err := store.Subtasks().ListByTask(ctx, input.TaskID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list subtasks", err)
		}

		var existing *domain.Subtask
		for _, s := range subtasks {
			if s.ID == input.ID {
				existing = s
				break
			}
		}
		if existing == nil {
			return nil, huma.Error404NotFound("subtask not found")
		}

		if input.Body.Title != "" {
			existing.Title = input.Body.Title
		}
		if input.Body.Done != nil {
			existing.Done = *input.Body.Done
		}

		if err := store.Subtasks().Update(ctx, existing); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("subtask not found")
			}
			return nil, huma.Error500InternalServerError("failed to update subtask", err)
		}

		publish(ctx, events, domain.EventSubtaskUpdated, identity,
			domain.SubtaskPayload{TaskID: existing.TaskID, SubtaskID: existing.ID, Subtask: existing},
			domain.TaskRoom(existing.TaskID))

		return &SubtaskOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-subtask",
		Method:      http.MethodDelete,
		Path:        "/tasks/{taskId}/subtasks/{id}",
		Summary:     "Delete a subtask",
		Tags:        []string{"Subtasks"},
	}, func(ctx context.Context, input *DeleteSubtaskInput) (*struct{}, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		if err := store.Subtasks().Delete(ctx, input.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("subtask not found")
			}
			return nil, huma.Error500InternalServerError("failed to delete subtask", err)
		}

		publish(ctx, events, domain.EventSubtaskDeleted, identity,
			domain.SubtaskPayload{TaskID: input.TaskID, SubtaskID: input.ID},
			domain.TaskRoom(input.TaskID))

		return nil, nil
	})
}
