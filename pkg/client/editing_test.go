package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbu/realtime/pkg/client"
	"github.com/kanbu/realtime/pkg/domain"
)

func TestLockCoordinator_SelfLockRoundTrip(t *testing.T) {
	t.Parallel()

	self := presence("alice")
	c, ft := newTestClient(t, self, true)
	lc := client.NewLockCoordinator(c)

	room := domain.TaskRoom(uuid.New())
	entityID := uuid.New()

	require.NoError(t, lc.Begin(context.Background(), room, entityID, "title"))
	state, holder := lc.State(entityID, "title")
	assert.Equal(t, client.LockedBySelf, state)
	assert.Equal(t, self.ID, holder.ID)

	require.NoError(t, lc.End(context.Background(), room, entityID, "title"))
	state, _ = lc.State(entityID, "title")
	assert.Equal(t, client.Unlocked, state)

	frames := ft.sentFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, string(domain.EventEditingStart), frames[0].Type)
	assert.Equal(t, string(domain.EventEditingStop), frames[1].Type)
}

func TestLockCoordinator_ObservesOtherEditors(t *testing.T) {
	t.Parallel()

	self := presence("alice")
	bob := presence("bob")
	c, ft := newTestClient(t, self, true)
	lc := client.NewLockCoordinator(c)
	stop := lc.Subscribe(c)
	defer stop()

	room := domain.TaskRoom(uuid.New())
	entityID := uuid.New()

	ft.push(mustEvent(domain.EventEditingStart, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	require.Eventually(t, func() bool {
		state, _ := lc.State(entityID, "title")
		return state == client.LockedByOther
	}, time.Second, 5*time.Millisecond)

	_, holder := lc.State(entityID, "title")
	assert.Equal(t, bob.ID, holder.ID)

	// A different field stays unlocked.
	state, _ := lc.State(entityID, "description")
	assert.Equal(t, client.Unlocked, state)

	ft.push(mustEvent(domain.EventEditingStop, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	require.Eventually(t, func() bool {
		state, _ := lc.State(entityID, "title")
		return state == client.Unlocked
	}, time.Second, 5*time.Millisecond)
}

func TestLockCoordinator_LastStartWins(t *testing.T) {
	t.Parallel()

	bob := presence("bob")
	carol := presence("carol")
	lc := client.NewLockCoordinator(newTestClientOnly(t))

	entityID := uuid.New()
	room := domain.TaskRoom(uuid.New())

	lc.HandleEvent(mustEvent(domain.EventEditingStart, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	lc.HandleEvent(mustEvent(domain.EventEditingStart, room, carol, domain.EditingPayload{EntityID: entityID, Field: "title"}))

	state, holder := lc.State(entityID, "title")
	assert.Equal(t, client.LockedByOther, state)
	assert.Equal(t, carol.ID, holder.ID, "racing starts resolve last-start-wins")

	// A stop from the displaced holder must not clobber the current one.
	lc.HandleEvent(mustEvent(domain.EventEditingStop, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	state, holder = lc.State(entityID, "title")
	assert.Equal(t, client.LockedByOther, state)
	assert.Equal(t, carol.ID, holder.ID)

	lc.HandleEvent(mustEvent(domain.EventEditingStop, room, carol, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	state, _ = lc.State(entityID, "title")
	assert.Equal(t, client.Unlocked, state)
}

func TestLockCoordinator_HolderDepartureReleasesLocks(t *testing.T) {
	t.Parallel()

	bob := presence("bob")
	lc := client.NewLockCoordinator(newTestClientOnly(t))

	room := domain.TaskRoom(uuid.New())
	taskA := uuid.New()
	taskB := uuid.New()

	lc.HandleEvent(mustEvent(domain.EventEditingStart, room, bob, domain.EditingPayload{EntityID: taskA, Field: "title"}))
	lc.HandleEvent(mustEvent(domain.EventEditingStart, room, bob, domain.EditingPayload{EntityID: taskB, Field: "description"}))

	// Bob's transport drops; presence:left stands in for editing:stop.
	lc.HandleEvent(mustEvent(domain.EventPresenceLeft, room, bob, domain.PresencePayload{User: bob, RoomName: room}))

	state, _ := lc.State(taskA, "title")
	assert.Equal(t, client.Unlocked, state)
	state, _ = lc.State(taskB, "description")
	assert.Equal(t, client.Unlocked, state)
}

func TestLockCoordinator_OnChange(t *testing.T) {
	t.Parallel()

	bob := presence("bob")
	lc := client.NewLockCoordinator(newTestClientOnly(t))

	var states []client.LockState
	lc.OnChange = func(_ uuid.UUID, _ string, state client.LockState, _ domain.PresenceEntry) {
		states = append(states, state)
	}

	entityID := uuid.New()
	room := domain.TaskRoom(uuid.New())
	lc.HandleEvent(mustEvent(domain.EventEditingStart, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))
	lc.HandleEvent(mustEvent(domain.EventEditingStop, room, bob, domain.EditingPayload{EntityID: entityID, Field: "title"}))

	assert.Equal(t, []client.LockState{client.LockedByOther, client.Unlocked}, states)
}

// newTestClientOnly builds a connected client when only Emit/Self matter.
func newTestClientOnly(t *testing.T) *client.Client {
	t.Helper()
	c, _ := newTestClient(t, presence("alice"), true)
	return c
}
