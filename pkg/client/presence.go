package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// Presence asks the server for the live roster of a room.
func (c *Client) Presence(ctx context.Context, room string) ([]domain.PresenceEntry, error) {
	ack, err := c.call(ctx, wire.MsgPresenceRequest, room, nil)
	if err != nil {
		return nil, fmt.Errorf("client.Presence %s: %w", room, err)
	}
	return ack.Members, nil
}

// RosterTracker keeps a local copy of one room's roster, seeded by a
// presence request and updated from presence:joined/left broadcasts. The
// copy is eventually consistent; Refresh re-seeds it. The session's own
// identity is filtered out: callers render "everyone else here".
type RosterTracker struct {
	client *Client
	room   string

	mu      sync.Mutex
	roster  map[uuid.UUID]domain.PresenceEntry
	tokens  []int
	started bool

	// OnChange, when set, fires after every roster change.
	OnChange func([]domain.PresenceEntry)
}

// NewRosterTracker creates a tracker for room. Call Start once the room
// has been joined.
func NewRosterTracker(c *Client, room string) *RosterTracker {
	return &RosterTracker{
		client: c,
		room:   room,
		roster: make(map[uuid.UUID]domain.PresenceEntry),
	}
}

// Start subscribes to membership broadcasts and seeds the roster.
func (rt *RosterTracker) Start(ctx context.Context) error {
	rt.mu.Lock()
	if rt.started {
		rt.mu.Unlock()
		return nil
	}
	rt.started = true
	rt.mu.Unlock()

	rt.tokens = []int{
		rt.client.OnEvent(domain.EventPresenceJoined, rt.handleJoined),
		rt.client.OnEvent(domain.EventPresenceLeft, rt.handleLeft),
	}

	return rt.Refresh(ctx)
}

// Stop unsubscribes from membership broadcasts.
func (rt *RosterTracker) Stop() {
	for i, token := range rt.tokens {
		typ := domain.EventPresenceJoined
		if i == 1 {
			typ = domain.EventPresenceLeft
		}
		rt.client.Off(string(typ), token)
	}
	rt.tokens = nil
}

// Refresh re-seeds the roster from a fresh presence request.
func (rt *RosterTracker) Refresh(ctx context.Context) error {
	members, err := rt.client.Presence(ctx, rt.room)
	if err != nil {
		return fmt.Errorf("client.RosterTracker.Refresh: %w", err)
	}

	self := rt.client.Self().ID

	rt.mu.Lock()
	rt.roster = make(map[uuid.UUID]domain.PresenceEntry, len(members))
	for _, m := range members {
		if m.ID == self {
			continue
		}
		rt.roster[m.ID] = m
	}
	rt.mu.Unlock()

	rt.changed()
	return nil
}

// Roster returns a snapshot of everyone else currently in the room.
func (rt *RosterTracker) Roster() []domain.PresenceEntry {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	out := make([]domain.PresenceEntry, 0, len(rt.roster))
	for _, m := range rt.roster {
		out = append(out, m)
	}
	return out
}

func (rt *RosterTracker) handleJoined(env wire.Envelope) {
	var p domain.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Debug().Err(err).Msg("client: bad presence payload")
		return
	}
	if p.RoomName != rt.room || p.User.ID == rt.client.Self().ID {
		return
	}

	rt.mu.Lock()
	rt.roster[p.User.ID] = p.User
	rt.mu.Unlock()

	rt.changed()
}

func (rt *RosterTracker) handleLeft(env wire.Envelope) {
	var p domain.PresencePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Debug().Err(err).Msg("client: bad presence payload")
		return
	}
	if p.RoomName != rt.room {
		return
	}

	rt.mu.Lock()
	delete(rt.roster, p.User.ID)
	rt.mu.Unlock()

	rt.changed()
}

func (rt *RosterTracker) changed() {
	if rt.OnChange != nil {
		rt.OnChange(rt.Roster())
	}
}
