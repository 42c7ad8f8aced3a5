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

type CreateCommentInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	Body   struct {
		Body string `json:"body" minLength:"1" maxLength:"10000" doc:"Comment text"`
	}
}

type CommentOutput struct {
	Body *domain.Comment
}

type ListCommentsInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
}

type ListCommentsOutput struct {
	Body []*domain.Comment
}

type UpdateCommentInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	ID     uuid.UUID `path:"id" doc:"Comment ID"`
	Body   struct {
		Body string `json:"body" minLength:"1" maxLength:"10000" doc:"Comment text"`
	}
}

type DeleteCommentInput struct {
	TaskID uuid.UUID `path:"taskId" doc:"Task ID"`
	ID     uuid.UUID `path:"id" doc:"Comment ID"`
}

func RegisterCommentRoutes(api huma.API, store DataStore, events Broadcaster) {
	huma.Register(api, huma.Operation{
		OperationID: "create-comment",
		Method:      http.MethodPost,
		Path:        "/tasks/{taskId}/comments",
		Summary:     "Add a comment to a task",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *CreateCommentInput) (*CommentOutput, error) {
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
		c := &domain.Comment{
			ID:        uuid.New(),
			TaskID:    input.TaskID,
			AuthorID:  identity.ID,
			Body:      input.Body.Body,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := store.Comments().Create(ctx, c); err != nil {
			return nil, huma.Error500InternalServerError("failed to create comment", err)
		}

		publish(ctx, events, domain.EventCommentCreated, identity,
			domain.CommentPayload{TaskID: c.TaskID, CommentID: c.ID, Comment: c},
			domain.TaskRoom(c.TaskID))

		return &CommentOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{taskId}/comments",
		Summary:     "List comments on a task",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *ListCommentsInput) (*ListCommentsOutput, error) {
		comments, err := store.Comments().ListByTask(ctx, input.TaskID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list comments", err)
		}

		return &ListCommentsOutput{Body: comments}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-comment",
		Method:      http.MethodPut,
		Path:        "/tasks/{taskId}/comments/{id}",
		Summary:     "Edit a comment",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *UpdateCommentInput) (*CommentOutput, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Comments().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("comment not found")
			}
			return nil, huma.Error500InternalServerError("failed to get comment", err)
		}
		if existing.AuthorID != identity.ID {
			return nil, huma.Error403Forbidden("only the author can edit a comment")
		}

		existing.Body = input.Body.Body
		if err := store.Comments().Update(ctx, existing); err != nil {
			return nil, huma.Error500InternalServerError("failed to update comment", err)
		}

		publish(ctx, events, domain.EventCommentUpdated, identity,
			domain.CommentPayload{TaskID: existing.TaskID, CommentID: existing.ID, Comment: existing},
			domain.TaskRoom(existing.TaskID))

		return &CommentOutput{Body: existing}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-comment",
		Method:      http.MethodDelete,
		Path:        "/tasks/{taskId}/comments/{id}",
		Summary:     "Delete a comment",
		Tags:        []string{"Comments"},
	}, func(ctx context.Context, input *DeleteCommentInput) (*struct{}, error) {
		identity, ok := middleware.IdentityFromContext(ctx)
		if !ok {
			return nil, huma.Error403Forbidden("missing identity")
		}

		existing, err := store.Comments().GetByID(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("comment not found")
			}
			return nil, huma.Error500InternalServerError("failed to get comment", err)
		}
		if existing.AuthorID != identity.ID {
			return nil, huma.Error403Forbidden("only the author can delete a comment")
		}

		if err := store.Comments().Delete(ctx, input.ID); err != nil {
			return nil, huma.Error500InternalServerError("failed to delete comment", err)
		}

		publish(ctx, events, domain.EventCommentDeleted, identity,
			domain.CommentPayload{TaskID: existing.TaskID, CommentID: existing.ID},
			domain.TaskRoom(existing.TaskID))

		return nil, nil
	})
}
