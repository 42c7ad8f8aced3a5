package v1

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Users() domain.UserRepository
	Tasks() domain.TaskRepository
	Comments() domain.CommentRepository
	Subtasks() domain.SubtaskRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, email, username, name, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
}

// Broadcaster fans domain events out to room members after a successful
// mutation. *realtime.Broadcaster satisfies this interface.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, env wire.Envelope) error
}

// publish builds and broadcasts a domain event. Broadcast failures are
// logged, not returned: the mutation already committed, and observers
// converge on their next refetch.
func publish(ctx context.Context, b Broadcaster, typ domain.EventType, by domain.PresenceEntry, payload any, rooms ...string) {
	for _, room := range rooms {
		env, err := wire.NewEvent(typ, room, by, payload)
		if err != nil {
			log.Error().Err(err).Str("type", string(typ)).Msg("event encode")
			return
		}
		if err := b.Broadcast(ctx, room, env); err != nil {
			log.Error().Err(err).Str("type", string(typ)).Str("room", room).Msg("event broadcast")
		}
	}
}
