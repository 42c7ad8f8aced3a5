package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// LockState is what this client renders for an (entity, field) pair.
type LockState int

const (
	Unlocked LockState = iota
	LockedBySelf
	LockedByOther
)

// EditingLock is an advisory hold on one field of one entity. It exists
// only as a pair of broadcast events; nothing durable backs it.
type EditingLock struct {
	EntityID   uuid.UUID
	Field      string
	Holder     domain.PresenceEntry
	AcquiredAt time.Time
}

type lockKey struct {
	entityID uuid.UUID
	field    string
}

type emitter interface {
	Emit(ctx context.Context, typ domain.EventType, room string, payload any) error
	Self() domain.PresenceEntry
}

// LockCoordinator tracks advisory editing locks as observed by this
// session. At most one holder is shown per (entity, field); racing starts
// resolve last-start-wins, acceptable because the lock discourages rather
// than prevents concurrent edits. A holder who disconnects releases all
// their locks implicitly through the room's presence:left broadcast.
type LockCoordinator struct {
	session emitter

	mu    sync.Mutex
	locks map[lockKey]EditingLock

	// OnChange, when set, fires with the new state after every transition.
	OnChange func(entityID uuid.UUID, field string, state LockState, holder domain.PresenceEntry)
}

func NewLockCoordinator(session emitter) *LockCoordinator {
	return &LockCoordinator{
		session: session,
		locks:   make(map[lockKey]EditingLock),
	}
}

// Subscribe registers the coordinator's handlers on c and returns a stop
// function. presence:left intentionally bypasses echo suppression: on our
// own departure there is nothing left to render anyway.
func (lc *LockCoordinator) Subscribe(c *Client) func() {
	startTok := c.OnEvent(domain.EventEditingStart, lc.HandleEvent)
	stopTok := c.OnEvent(domain.EventEditingStop, lc.HandleEvent)
	leftTok := c.On(string(domain.EventPresenceLeft), lc.HandleEvent)

	return func() {
		c.Off(string(domain.EventEditingStart), startTok)
		c.Off(string(domain.EventEditingStop), stopTok)
		c.Off(string(domain.EventPresenceLeft), leftTok)
	}
}

// Begin advertises that this session is editing the field and records the
// lock as LockedBySelf.
func (lc *LockCoordinator) Begin(ctx context.Context, room string, entityID uuid.UUID, field string) error {
	err := lc.session.Emit(ctx, domain.EventEditingStart, room, domain.EditingPayload{
		EntityID: entityID,
		Field:    field,
	})
	if err != nil {
		return fmt.Errorf("client.LockCoordinator.Begin: %w", err)
	}

	lc.apply(entityID, field, lc.session.Self())
	return nil
}

// End advertises save or cancel and releases the local lock.
func (lc *LockCoordinator) End(ctx context.Context, room string, entityID uuid.UUID, field string) error {
	err := lc.session.Emit(ctx, domain.EventEditingStop, room, domain.EditingPayload{
		EntityID: entityID,
		Field:    field,
	})
	if err != nil {
		return fmt.Errorf("client.LockCoordinator.End: %w", err)
	}

	lc.release(entityID, field, lc.session.Self().ID)
	return nil
}

// State reports what this client renders for (entityID, field).
func (lc *LockCoordinator) State(entityID uuid.UUID, field string) (LockState, domain.PresenceEntry) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lock, ok := lc.locks[lockKey{entityID: entityID, field: field}]
	if !ok {
		return Unlocked, domain.PresenceEntry{}
	}
	if lock.Holder.ID == lc.session.Self().ID {
		return LockedBySelf, lock.Holder
	}
	return LockedByOther, lock.Holder
}

// HandleEvent applies one broadcast envelope to the lock table.
func (lc *LockCoordinator) HandleEvent(env wire.Envelope) {
	switch domain.EventType(env.Type) {
	case domain.EventEditingStart, domain.EventEditingStop:
		if env.TriggeredBy == nil {
			return
		}
		var p domain.EditingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("client: bad editing payload")
			return
		}
		if domain.EventType(env.Type) == domain.EventEditingStart {
			lc.apply(p.EntityID, p.Field, *env.TriggeredBy)
		} else {
			lc.release(p.EntityID, p.Field, env.TriggeredBy.ID)
		}

	case domain.EventPresenceLeft:
		var p domain.PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			log.Debug().Err(err).Msg("client: bad presence payload")
			return
		}
		lc.releaseAll(p.User.ID)
	}
}

// apply installs holder, displacing any previous one (last start wins).
func (lc *LockCoordinator) apply(entityID uuid.UUID, field string, holder domain.PresenceEntry) {
	key := lockKey{entityID: entityID, field: field}

	lc.mu.Lock()
	lc.locks[key] = EditingLock{
		EntityID:   entityID,
		Field:      field,
		Holder:     holder,
		AcquiredAt: time.Now(),
	}
	lc.mu.Unlock()

	lc.notify(entityID, field)
}

// release clears the lock only when holderID still holds it; a stop from a
// displaced holder must not clobber the current one.
func (lc *LockCoordinator) release(entityID uuid.UUID, field string, holderID uuid.UUID) {
	key := lockKey{entityID: entityID, field: field}

	lc.mu.Lock()
	lock, ok := lc.locks[key]
	if !ok || lock.Holder.ID != holderID {
		lc.mu.Unlock()
		return
	}
	delete(lc.locks, key)
	lc.mu.Unlock()

	lc.notify(entityID, field)
}

// releaseAll drops every lock held by a departed user.
func (lc *LockCoordinator) releaseAll(holderID uuid.UUID) {
	lc.mu.Lock()
	var freed []lockKey
	for key, lock := range lc.locks {
		if lock.Holder.ID == holderID {
			delete(lc.locks, key)
			freed = append(freed, key)
		}
	}
	lc.mu.Unlock()

	for _, key := range freed {
		lc.notify(key.entityID, key.field)
	}
}

func (lc *LockCoordinator) notify(entityID uuid.UUID, field string) {
	if lc.OnChange == nil {
		return
	}
	state, holder := lc.State(entityID, field)
	lc.OnChange(entityID, field, state, holder)
}
