package domain

import "github.com/google/uuid"

// EventType names a broadcast event on the realtime stream. The set is
// closed; unknown types are dropped by both server and client.
type EventType string

const (
	EventPresenceJoined EventType = "presence:joined"
	EventPresenceLeft   EventType = "presence:left"

	EventTaskCreated EventType = "task:created"
	EventTaskUpdated EventType = "task:updated"
	EventTaskMoved   EventType = "task:moved"
	EventTaskDeleted EventType = "task:deleted"

	EventCommentCreated EventType = "comment:created"
	EventCommentUpdated EventType = "comment:updated"
	EventCommentDeleted EventType = "comment:deleted"

	EventSubtaskCreated EventType = "subtask:created"
	EventSubtaskUpdated EventType = "subtask:updated"
	EventSubtaskDeleted EventType = "subtask:deleted"

	EventTagAdded   EventType = "tag:added"
	EventTagRemoved EventType = "tag:removed"

	EventEditingStart EventType = "editing:start"
	EventEditingStop  EventType = "editing:stop"

	EventTypingStart EventType = "typing:start"
	EventTypingStop  EventType = "typing:stop"

	EventCursorMove EventType = "cursor:move"
)

// Valid reports whether t belongs to the closed event set.
func (t EventType) Valid() bool {
	switch t {
	case EventPresenceJoined, EventPresenceLeft,
		EventTaskCreated, EventTaskUpdated, EventTaskMoved, EventTaskDeleted,
		EventCommentCreated, EventCommentUpdated, EventCommentDeleted,
		EventSubtaskCreated, EventSubtaskUpdated, EventSubtaskDeleted,
		EventTagAdded, EventTagRemoved,
		EventEditingStart, EventEditingStop,
		EventTypingStart, EventTypingStop,
		EventCursorMove:
		return true
	}
	return false
}

// Relayable reports whether clients may emit t for the server to relay
// verbatim to a room. Everything else originates server-side.
func (t EventType) Relayable() bool {
	switch t {
	case EventEditingStart, EventEditingStop,
		EventTypingStart, EventTypingStop,
		EventCursorMove:
		return true
	}
	return false
}

// Payload shapes for the closed event set.

type PresencePayload struct {
	User     PresenceEntry `json:"user"`
	RoomName string        `json:"roomName"`
}

type TaskPayload struct {
	TaskID uuid.UUID `json:"taskId"`
	Task   *Task     `json:"task,omitempty"`
}

type TaskMovedPayload struct {
	TaskID       uuid.UUID `json:"taskId"`
	FromColumnID int64     `json:"fromColumnId"`
	ToColumnID   int64     `json:"toColumnId"`
	ToPosition   int       `json:"toPosition"`
}

type CommentPayload struct {
	TaskID    uuid.UUID `json:"taskId"`
	CommentID uuid.UUID `json:"commentId"`
	Comment   *Comment  `json:"comment,omitempty"`
}

type SubtaskPayload struct {
	TaskID    uuid.UUID `json:"taskId"`
	SubtaskID uuid.UUID `json:"subtaskId"`
	Subtask   *Subtask  `json:"subtask,omitempty"`
}

type TagPayload struct {
	TaskID uuid.UUID `json:"taskId"`
	Tag    string    `json:"tag"`
}

type EditingPayload struct {
	EntityID uuid.UUID `json:"entityId"`
	Field    string    `json:"field"`
}

type TypingPayload struct {
	TaskID uuid.UUID `json:"taskId"`
}

type CursorPosition struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	ViewportWidth  int     `json:"viewportWidth"`
	ViewportHeight int     `json:"viewportHeight"`
}

type CursorPayload struct {
	RoomName string         `json:"roomName"`
	Position CursorPosition `json:"position"`
}
