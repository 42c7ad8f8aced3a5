package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/internal/server/middleware"
	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

// Gateway owns the websocket endpoint: exactly one transport per browser
// session, frame dispatch for the room control protocol, relay of advisory
// client events, and membership teardown on disconnect.
type Gateway struct {
	registry    *Registry
	broadcaster *Broadcaster
	sendBuffer  int
}

func NewGateway(registry *Registry, broadcaster *Broadcaster, sendBuffer int) *Gateway {
	return &Gateway{
		registry:    registry,
		broadcaster: broadcaster,
		sendBuffer:  sendBuffer,
	}
}

// ServeWS upgrades the request and runs the connection until it drops.
// Identity comes from the auth middleware; the transport is refused without it.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}

	c := newConn(identity, sock, g.sendBuffer)
	g.run(r.Context(), c)
}

// run reads frames until the transport drops, then cascades membership
// removal and presence:left broadcasts for every room the connection held.
func (g *Gateway) run(ctx context.Context, c *Conn) {
	go c.writePump(ctx)

	defer g.disconnect(ctx, c)

	for {
		_, data, err := c.sock.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Str("user", c.identity.Username).Msg("websocket read")
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Msg("websocket frame decode")
			continue
		}

		g.dispatch(ctx, c, env)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *Conn, env wire.Envelope) {
	switch env.Type {
	case wire.MsgJoin:
		g.handleJoin(ctx, c, env)
	case wire.MsgLeave:
		g.handleLeave(ctx, c, env)
	case wire.MsgPresenceRequest:
		g.handlePresenceRequest(c, env)
	default:
		if domain.EventType(env.Type).Relayable() {
			g.relay(ctx, c, env)
			return
		}
		log.Debug().Str("type", env.Type).Msg("dropping unknown frame")
	}
}

func (g *Gateway) handleJoin(ctx context.Context, c *Conn, env wire.Envelope) {
	if _, _, err := domain.ParseRoom(env.Room); err != nil {
		g.ack(c, env.ID, wire.AckPayload{OK: false, Error: "invalid room name"})
		return
	}

	// Idempotent: re-joining is a no-op that still acks success.
	if g.registry.Join(c, env.Room) {
		g.broadcaster.EnsureRelay(env.Room)

		joined, err := wire.NewEvent(domain.EventPresenceJoined, env.Room, c.identity, domain.PresencePayload{
			User:     c.identity,
			RoomName: env.Room,
		})
		if err == nil {
			_ = g.broadcaster.Broadcast(ctx, env.Room, joined)
		}
	}

	g.ack(c, env.ID, wire.AckPayload{OK: true})
}

func (g *Gateway) handleLeave(ctx context.Context, c *Conn, env wire.Envelope) {
	if g.registry.Leave(c, env.Room) {
		g.broadcastLeft(ctx, c, env.Room)
	}

	g.ack(c, env.ID, wire.AckPayload{OK: true})
}

func (g *Gateway) handlePresenceRequest(c *Conn, env wire.Envelope) {
	if _, _, err := domain.ParseRoom(env.Room); err != nil {
		g.ack(c, env.ID, wire.AckPayload{OK: false, Error: "invalid room name"})
		return
	}

	g.ack(c, env.ID, wire.AckPayload{OK: true, Members: g.registry.Roster(env.Room)})
}

// relay re-broadcasts an advisory client event (editing, typing, cursor)
// to its room, stamped with the sender's identity. Senders must be members.
func (g *Gateway) relay(ctx context.Context, c *Conn, env wire.Envelope) {
	if !g.registry.IsMember(c, env.Room) {
		log.Debug().
			Str("type", env.Type).
			Str("room", env.Room).
			Str("user", c.identity.Username).
			Msg("relay from non-member dropped")
		return
	}

	identity := c.identity
	out := wire.Envelope{
		Type:        env.Type,
		Room:        env.Room,
		TriggeredBy: &identity,
		Timestamp:   time.Now().UTC(),
		Payload:     env.Payload,
	}

	if err := g.broadcaster.Broadcast(ctx, env.Room, out); err != nil {
		log.Error().Err(err).Str("room", env.Room).Msg("relay broadcast")
	}
}

// disconnect drops every membership the connection held and tells each
// affected room. Rooms left empty lose their relay subscription.
func (g *Gateway) disconnect(ctx context.Context, c *Conn) {
	for _, room := range g.registry.Drop(c) {
		g.broadcastLeft(ctx, c, room)
	}
	c.shutdown(websocket.StatusNormalClosure, "connection closed")
}

func (g *Gateway) broadcastLeft(ctx context.Context, c *Conn, room string) {
	left, err := wire.NewEvent(domain.EventPresenceLeft, room, c.identity, domain.PresencePayload{
		User:     c.identity,
		RoomName: room,
	})
	if err == nil {
		_ = g.broadcaster.Broadcast(ctx, room, left)
	}

	if g.registry.MemberCount(room) == 0 {
		g.broadcaster.DropRelay(room)
	}
}

func (g *Gateway) ack(c *Conn, id string, p wire.AckPayload) {
	env, err := wire.NewAck(id, p)
	if err != nil {
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	if !c.enqueue(frame) {
		c.shutdown(websocket.StatusPolicyViolation, "send queue overflow")
	}
}
