package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RoomKind is the namespace prefix of a room identifier.
type RoomKind string

const (
	RoomProject RoomKind = "project"
	RoomTask    RoomKind = "task"
)

// Rooms are named "<kind>:<uuid>". All construction and parsing goes through
// this package so the format cannot drift between server and client.

// ProjectRoom returns the room name for a project board.
func ProjectRoom(projectID uuid.UUID) string {
	return string(RoomProject) + ":" + projectID.String()
}

// TaskRoom returns the room name for a task detail view.
func TaskRoom(taskID uuid.UUID) string {
	return string(RoomTask) + ":" + taskID.String()
}

// ParseRoom splits a room name into its kind and entity ID.
// Returns ErrInvalidRoom for anything that is not a known kind
// followed by a single UUID.
func ParseRoom(name string) (RoomKind, uuid.UUID, error) {
	kind, rest, ok := strings.Cut(name, ":")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("domain.ParseRoom: %q: %w", name, ErrInvalidRoom)
	}

	switch RoomKind(kind) {
	case RoomProject, RoomTask:
	default:
		return "", uuid.Nil, fmt.Errorf("domain.ParseRoom: %q: %w", name, ErrInvalidRoom)
	}

	id, err := uuid.Parse(rest)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("domain.ParseRoom: %q: %w", name, ErrInvalidRoom)
	}

	return RoomKind(kind), id, nil
}
