package client

import (
	"context"
	"fmt"

	"github.com/kanbu/realtime/pkg/wire"
)

// Join enters a room and waits for the server ack. Idempotent: joining a
// room the session already holds succeeds without side effects. Membership
// is only guaranteed once Join returns nil; presence queries issued before
// that will not include this session.
func (c *Client) Join(ctx context.Context, room string) error {
	if _, err := c.call(ctx, wire.MsgJoin, room, nil); err != nil {
		return fmt.Errorf("client.Join %s: %w", room, err)
	}

	c.mu.Lock()
	c.joined[room] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Leave exits a room and waits for the server ack. Events for the room stop
// arriving; requests already in flight still resolve. The room stays in the
// replay set until the server confirms: an unconfirmed leave means the
// server still counts this session a member and keeps delivering.
func (c *Client) Leave(ctx context.Context, room string) error {
	if _, err := c.call(ctx, wire.MsgLeave, room, nil); err != nil {
		return fmt.Errorf("client.Leave %s: %w", room, err)
	}

	c.mu.Lock()
	delete(c.joined, room)
	c.mu.Unlock()
	return nil
}

// Rooms returns the rooms this session currently holds (and will replay
// after a reconnect).
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]string, 0, len(c.joined))
	for room := range c.joined {
		rooms = append(rooms, room)
	}
	return rooms
}
