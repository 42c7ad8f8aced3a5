package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	redisstore "github.com/kanbu/realtime/internal/store/redis"
	"github.com/kanbu/realtime/pkg/wire"
)

// PubSub is the cross-node fan-out backend. *redisstore.PubSub implements it.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Broadcaster fans room events out to every local member and, when a
// pub/sub backend is configured, to the members held by other nodes.
// Frames relayed from Redis are tagged with the node that published them
// so a node never re-delivers its own publishes.
type Broadcaster struct {
	ctx      context.Context
	registry *Registry
	pubsub   PubSub // nil in single-node mode
	nodeID   string

	mu     sync.Mutex
	relays map[string]func()
}

// NewBroadcaster creates a broadcaster. ctx bounds the lifetime of relay
// subscriptions and should be the server's base context.
func NewBroadcaster(ctx context.Context, registry *Registry, pubsub PubSub) *Broadcaster {
	return &Broadcaster{
		ctx:      ctx,
		registry: registry,
		pubsub:   pubsub,
		nodeID:   uuid.NewString(),
		relays:   make(map[string]func()),
	}
}

type relayFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Broadcast delivers env to every connection joined to room, on this node
// and on every other node subscribed to the room's channel.
func (b *Broadcaster) Broadcast(ctx context.Context, room string, env wire.Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime.Broadcast: %w", err)
	}

	b.deliver(room, frame)

	if b.pubsub != nil {
		wrapped, err := json.Marshal(relayFrame{Origin: b.nodeID, Frame: frame})
		if err != nil {
			return fmt.Errorf("realtime.Broadcast: %w", err)
		}
		if err := b.pubsub.Publish(ctx, redisstore.RoomChannel(room), wrapped); err != nil {
			return fmt.Errorf("realtime.Broadcast: %w", err)
		}
	}

	return nil
}

// deliver enqueues a frame to every local member of room. A member whose
// queue is full is disconnected instead of stalling the fan-out.
func (b *Broadcaster) deliver(room string, frame []byte) {
	for _, c := range b.registry.Members(room) {
		if !c.enqueue(frame) {
			log.Warn().
				Str("room", room).
				Str("user", c.identity.Username).
				Msg("dropping slow websocket consumer")
			c.shutdown(websocket.StatusPolicyViolation, "send queue overflow")
		}
	}
}

// EnsureRelay subscribes this node to room's channel so events published
// by other nodes reach local members. No-op without a pub/sub backend or
// when the relay already exists.
func (b *Broadcaster) EnsureRelay(room string) {
	if b.pubsub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.relays[room]; ok {
		return
	}

	messages, cleanup, err := b.pubsub.Subscribe(b.ctx, redisstore.RoomChannel(room))
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("relay subscribe")
		return
	}
	b.relays[room] = cleanup

	go func() {
		for msg := range messages {
			var rf relayFrame
			if err := json.Unmarshal(msg, &rf); err != nil {
				log.Debug().Err(err).Str("room", room).Msg("relay decode")
				continue
			}
			if rf.Origin == b.nodeID {
				continue
			}
			b.deliver(room, rf.Frame)
		}
	}()
}

// DropRelay tears down the relay subscription for room. Called when the
// last local member leaves.
func (b *Broadcaster) DropRelay(room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cleanup, ok := b.relays[room]; ok {
		delete(b.relays, room)
		cleanup()
	}
}

// Close tears down every relay subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for room, cleanup := range b.relays {
		delete(b.relays, room)
		cleanup()
	}
}
