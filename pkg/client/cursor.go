package client

import (
	"context"

	"github.com/kanbu/realtime/pkg/domain"
)

// SendCursor broadcasts this session's pointer position to a room.
// Fire-and-forget; receivers scale by the viewport dimensions.
func (c *Client) SendCursor(ctx context.Context, room string, pos domain.CursorPosition) error {
	return c.Emit(ctx, domain.EventCursorMove, room, domain.CursorPayload{
		RoomName: room,
		Position: pos,
	})
}
