package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/kanbu/realtime/pkg/domain"
)

type contextKey string

const (
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyIdentity contextKey = "identity"
)

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(uuid.UUID)
	return v, ok
}

// IdentityFromContext returns the authenticated user's presence identity,
// the source of triggeredBy tags and presence roster entries.
func IdentityFromContext(ctx context.Context) (domain.PresenceEntry, bool) {
	v, ok := ctx.Value(ContextKeyIdentity).(domain.PresenceEntry)
	return v, ok
}

// WithIdentity returns a context carrying the given identity. Used by the
// auth middleware and by tests that bypass it.
func WithIdentity(ctx context.Context, identity domain.PresenceEntry) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, identity.ID)
	ctx = context.WithValue(ctx, ContextKeyIdentity, identity)
	return ctx
}
