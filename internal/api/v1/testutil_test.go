package v1_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kanbu/realtime/internal/server/middleware"
	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// ---------------------------------------------------------------------------
// Context helpers — inject the authenticated identity for DoCtx
// ---------------------------------------------------------------------------

func identityCtx(identity domain.PresenceEntry) context.Context {
	return middleware.WithIdentity(context.Background(), identity)
}

// ---------------------------------------------------------------------------
// Recording broadcaster
// ---------------------------------------------------------------------------

type recordedEvent struct {
	Room string
	Env  wire.Envelope
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (rb *recordingBroadcaster) Broadcast(_ context.Context, room string, env wire.Envelope) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = append(rb.events, recordedEvent{Room: room, Env: env})
	return nil
}

func (rb *recordingBroadcaster) recorded() []recordedEvent {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return append([]recordedEvent(nil), rb.events...)
}

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	users    domain.UserRepository
	tasks    domain.TaskRepository
	comments domain.CommentRepository
	subtasks domain.SubtaskRepository
}

func (m *mockDataStore) Users() domain.UserRepository       { return m.users }
func (m *mockDataStore) Tasks() domain.TaskRepository       { return m.tasks }
func (m *mockDataStore) Comments() domain.CommentRepository { return m.comments }
func (m *mockDataStore) Subtasks() domain.SubtaskRepository { return m.subtasks }

// ---------------------------------------------------------------------------
// Mock TaskRepository
// ---------------------------------------------------------------------------

type mockTaskRepo struct {
	createFunc        func(ctx context.Context, t *domain.Task) error
	getByIDFunc       func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	listByProjectFunc func(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error)
	updateFunc        func(ctx context.Context, t *domain.Task, expected time.Time) error
	moveFunc          func(ctx context.Context, id uuid.UUID, toColumnID int64, toPosition int, expected time.Time) (*domain.Task, error)
	deleteFunc        func(ctx context.Context, id uuid.UUID, expected time.Time) error
	addTagFunc        func(ctx context.Context, id uuid.UUID, tag string) error
	removeTagFunc     func(ctx context.Context, id uuid.UUID, tag string) error
}

func (m *mockTaskRepo) Create(ctx context.Context, t *domain.Task) error {
	return m.createFunc(ctx, t)
}

func (m *mockTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockTaskRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Task, error) {
	return m.listByProjectFunc(ctx, projectID)
}

func (m *mockTaskRepo) Update(ctx context.Context, t *domain.Task, expected time.Time) error {
	return m.updateFunc(ctx, t, expected)
}

func (m *mockTaskRepo) Move(ctx context.Context, id uuid.UUID, toColumnID int64, toPosition int, expected time.Time) (*domain.Task, error) {
	return m.moveFunc(ctx, id, toColumnID, toPosition, expected)
}

func (m *mockTaskRepo) Delete(ctx context.Context, id uuid.UUID, expected time.Time) error {
	return m.deleteFunc(ctx, id, expected)
}

func (m *mockTaskRepo) AddTag(ctx context.Context, id uuid.UUID, tag string) error {
	return m.addTagFunc(ctx, id, tag)
}

func (m *mockTaskRepo) RemoveTag(ctx context.Context, id uuid.UUID, tag string) error {
	return m.removeTagFunc(ctx, id, tag)
}

// ---------------------------------------------------------------------------
// Mock CommentRepository
// ---------------------------------------------------------------------------

type mockCommentRepo struct {
	createFunc     func(ctx context.Context, c *domain.Comment) error
	getByIDFunc    func(ctx context.Context, id uuid.UUID) (*domain.Comment, error)
	listByTaskFunc func(ctx context.Context, taskID uuid.UUID) ([]*domain.Comment, error)
	updateFunc     func(ctx context.Context, c *domain.Comment) error
	deleteFunc     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockCommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	return m.createFunc(ctx, c)
}

func (m *mockCommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Comment, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockCommentRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Comment, error) {
	return m.listByTaskFunc(ctx, taskID)
}

func (m *mockCommentRepo) Update(ctx context.Context, c *domain.Comment) error {
	return m.updateFunc(ctx, c)
}

func (m *mockCommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}

// ---------------------------------------------------------------------------
// Mock SubtaskRepository
// ---------------------------------------------------------------------------

type mockSubtaskRepo struct {
	createFunc     func(ctx context.Context, s *domain.Subtask) error
	listByTaskFunc func(ctx context.Context, taskID uuid.UUID) ([]*domain.Subtask, error)
	updateFunc     func(ctx context.Context, s *domain.Subtask) error
	deleteFunc     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockSubtaskRepo) Create(ctx context.Context, s *domain.Subtask) error {
	return m.createFunc(ctx, s)
}

func (m *mockSubtaskRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Subtask, error) {
	return m.listByTaskFunc(ctx, taskID)
}

func (m *mockSubtaskRepo) Update(ctx context.Context, s *domain.Subtask) error {
	return m.updateFunc(ctx, s)
}

func (m *mockSubtaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return m.deleteFunc(ctx, id)
}
