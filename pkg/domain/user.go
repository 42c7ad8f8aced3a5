package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	Name         string
	AvatarURL    string
	PasswordHash string // argon2id
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PresenceEntry is the slice of a user identity shared with other room
// members. Its lifetime is bound to room membership, not to the connection;
// a user may be present in zero or many rooms.
type PresenceEntry struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
}

// Presence returns the broadcastable identity for this user.
func (u *User) Presence() PresenceEntry {
	return PresenceEntry{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
}
