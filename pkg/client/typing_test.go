package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbu/realtime/pkg/client"
	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)
}

func typingEvent(typ domain.EventType, room string, by domain.PresenceEntry, taskID uuid.UUID) wire.Envelope {
	return mustEvent(typ, room, by, domain.TypingPayload{TaskID: taskID})
}

func TestTypingAggregator_RenderedLines(t *testing.T) {
	t.Parallel()

	self := presence("me")
	alice := presence("alice")
	bob := presence("bob")
	carol := presence("carol")
	dave := presence("dave")

	ta := client.NewTypingAggregator(client.TypingConfig{Self: self.ID})
	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	assert.Equal(t, "", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, alice, taskID))
	assert.Equal(t, "alice is typing…", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, bob, taskID))
	assert.Equal(t, "alice and bob are typing…", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, carol, taskID))
	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, dave, taskID))
	assert.Equal(t, "alice and 3 others are typing…", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStop, room, alice, taskID))
	assert.Equal(t, "bob and 2 others are typing…", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStop, room, carol, taskID))
	ta.HandleEvent(typingEvent(domain.EventTypingStop, room, dave, taskID))
	assert.Equal(t, "bob is typing…", ta.Render(taskID))

	ta.HandleEvent(typingEvent(domain.EventTypingStop, room, bob, taskID))
	assert.Equal(t, "", ta.Render(taskID))
}

func TestTypingAggregator_StopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()

	ta := client.NewTypingAggregator(client.TypingConfig{Self: uuid.New()})
	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	ta.HandleEvent(typingEvent(domain.EventTypingStop, room, presence("ghost"), taskID))
	assert.Equal(t, "", ta.Render(taskID))
}

func TestTypingAggregator_IgnoresSelf(t *testing.T) {
	t.Parallel()

	self := presence("me")
	ta := client.NewTypingAggregator(client.TypingConfig{Self: self.ID})
	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, self, taskID))
	assert.Equal(t, "", ta.Render(taskID))
}

func TestTypingAggregator_IdleExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
	alice := presence("alice")
	bob := presence("bob")

	ta := client.NewTypingAggregator(client.TypingConfig{
		Self:        uuid.New(),
		IdleTimeout: 6 * time.Second,
		Now:         clock.Now,
	})
	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, alice, taskID))
	clock.Advance(4 * time.Second)
	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, bob, taskID))
	assert.Equal(t, "alice and bob are typing…", ta.Render(taskID))

	// Alice never stopped; her start just went stale.
	clock.Advance(3 * time.Second)
	assert.Equal(t, "bob is typing…", ta.Render(taskID))

	// A renewed start keeps a typer alive past the original deadline.
	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, bob, taskID))
	clock.Advance(5 * time.Second)
	assert.Equal(t, "bob is typing…", ta.Render(taskID))

	clock.Advance(2 * time.Second)
	assert.Equal(t, "", ta.Render(taskID))
}

func TestTypingAggregator_DepartureClearsTyper(t *testing.T) {
	t.Parallel()

	alice := presence("alice")
	ta := client.NewTypingAggregator(client.TypingConfig{Self: uuid.New()})
	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	ta.HandleEvent(typingEvent(domain.EventTypingStart, room, alice, taskID))
	require.Equal(t, "alice is typing…", ta.Render(taskID))

	ta.HandleEvent(mustEvent(domain.EventPresenceLeft, room, alice, domain.PresencePayload{User: alice, RoomName: room}))
	assert.Equal(t, "", ta.Render(taskID))
}

func TestTypingNotifier_DebouncesStarts(t *testing.T) {
	t.Parallel()

	c, ft := newTestClient(t, presence("alice"), true)
	tn := client.NewTypingNotifier(c, 3*time.Second)

	room := domain.TaskRoom(uuid.New())
	taskID := uuid.New()

	// A burst of keystrokes emits one start.
	for i := 0; i < 5; i++ {
		require.NoError(t, tn.Typing(context.Background(), room, taskID))
	}
	frames := ft.sentFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, string(domain.EventTypingStart), frames[0].Type)

	// Stop once; a second stop without a new burst is silent.
	require.NoError(t, tn.Stopped(context.Background(), room, taskID))
	require.NoError(t, tn.Stopped(context.Background(), room, taskID))
	frames = ft.sentFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, string(domain.EventTypingStop), frames[1].Type)
}
