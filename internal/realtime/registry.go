package realtime

import (
	"sync"

	"github.com/kanbu/realtime/pkg/domain"
)

// Registry owns room membership, the only shared mutable state in the sync
// layer. Rooms are created lazily on first join and forgotten when the last
// member leaves; nothing survives an empty room. The dual index keeps both
// "who is in this room" and "which rooms does this connection hold" cheap.
type Registry struct {
	mu     sync.RWMutex
	byRoom map[string]map[*Conn]struct{}
	byConn map[*Conn]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byRoom: make(map[string]map[*Conn]struct{}),
		byConn: make(map[*Conn]map[string]struct{}),
	}
}

// Join adds c to room. Idempotent: returns true only when c was not
// already a member.
func (r *Registry) Join(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.byRoom[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.byRoom[room] = members
	}
	if _, already := members[c]; already {
		return false
	}
	members[c] = struct{}{}

	rooms, ok := r.byConn[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.byConn[c] = rooms
	}
	rooms[room] = struct{}{}

	return true
}

// Leave removes c from room. Returns true only when c was a member.
func (r *Registry) Leave(c *Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.leaveLocked(c, room)
}

func (r *Registry) leaveLocked(c *Conn, room string) bool {
	members, ok := r.byRoom[room]
	if !ok {
		return false
	}
	if _, member := members[c]; !member {
		return false
	}

	delete(members, c)
	if len(members) == 0 {
		delete(r.byRoom, room)
	}

	if rooms, ok := r.byConn[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.byConn, c)
		}
	}

	return true
}

// Drop removes c from every room it joined and returns those rooms.
// Called on disconnect; the gateway broadcasts presence:left per room.
func (r *Registry) Drop(c *Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := make([]string, 0, len(r.byConn[c]))
	for room := range r.byConn[c] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.leaveLocked(c, room)
	}

	return rooms
}

// IsMember reports whether c has joined room.
func (r *Registry) IsMember(c *Conn, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byRoom[room][c]
	return ok
}

// Members returns a snapshot of the connections joined to room.
func (r *Registry) Members(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Conn, 0, len(r.byRoom[room]))
	for c := range r.byRoom[room] {
		members = append(members, c)
	}
	return members
}

// MemberCount returns the number of connections joined to room.
func (r *Registry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byRoom[room])
}

// Roster derives the presence entries for room, deduplicated by user:
// a user with two connections in the room appears once.
func (r *Registry) Roster(room string) []domain.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.byRoom[room]))
	roster := make([]domain.PresenceEntry, 0, len(r.byRoom[room]))
	for c := range r.byRoom[room] {
		key := c.identity.ID.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		roster = append(roster, c.identity)
	}

	return roster
}
