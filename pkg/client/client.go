// Package client is the Go client for the Kanbu realtime sync layer: one
// websocket session with room membership, presence, event fan-in, and the
// board-side coordination pieces (optimistic mutations, advisory editing
// locks, save-time conflict detection, typing aggregation).
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
	"github.com/kanbu/realtime/pkg/wire"
)

var (
	// ErrDisconnected reports an operation attempted, or a response awaited,
	// while the session transport was down.
	ErrDisconnected = errors.New("client: disconnected")
	// ErrClosed reports an operation on a client after Close.
	ErrClosed = errors.New("client: closed")
	// ErrRejected wraps a server nack on a request/ack exchange.
	ErrRejected = errors.New("client: request rejected")
)

// Transport is the minimal websocket surface the client rides on.
// *websocket.Conn satisfies it.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a fresh transport. Overridable for tests and reused on
// every reconnect attempt.
type Dialer func(ctx context.Context) (Transport, error)

// State is the connection state of the session.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

// Handler receives broadcast envelopes. Handlers run on the read loop
// goroutine; long work should be handed off.
type Handler func(env wire.Envelope)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL string
	// Token is the bearer token presented on dial.
	Token string
	// Identity is the authenticated user behind this session, used for
	// origin-echo suppression. Required.
	Identity domain.PresenceEntry

	// RPCTimeout bounds request/ack exchanges. Default 10s.
	RPCTimeout time.Duration
	// ReconnectMinDelay/ReconnectMaxDelay bound the reconnect backoff.
	// Defaults 500ms and 30s.
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration

	// OnStateChange, when set, is called on connect, reconnect and drop.
	OnStateChange func(State)

	// Dial overrides the websocket dialer.
	Dial Dialer
}

type pendingCall struct {
	epoch int
	ch    chan wire.Envelope
}

type handlerEntry struct {
	id int
	fn Handler
}

// Client is one realtime session: a single transport, the set of joined
// rooms (replayed after reconnect), correlation-id RPC over the event
// stream, and handler dispatch for broadcast events.
type Client struct {
	opts Options
	dial Dialer

	mu        sync.Mutex
	transport Transport
	state     State
	// epoch counts transports. Acks resolved against an older epoch are
	// stale and discarded.
	epoch        int
	closed       bool
	reconnecting bool
	pending      map[string]pendingCall
	handlers     map[string][]handlerEntry
	nextHandler  int
	joined       map[string]struct{}
}

// New creates a client. Connect must be called before any protocol
// operation.
func New(opts Options) (*Client, error) {
	if opts.Identity.ID == uuid.Nil {
		return nil, errors.New("client.New: identity is required")
	}
	if opts.URL == "" && opts.Dial == nil {
		return nil, errors.New("client.New: URL is required")
	}
	if opts.RPCTimeout <= 0 {
		opts.RPCTimeout = 10 * time.Second
	}
	if opts.ReconnectMinDelay <= 0 {
		opts.ReconnectMinDelay = 500 * time.Millisecond
	}
	if opts.ReconnectMaxDelay <= 0 {
		opts.ReconnectMaxDelay = 30 * time.Second
	}

	c := &Client{
		opts:     opts,
		pending:  make(map[string]pendingCall),
		handlers: make(map[string][]handlerEntry),
		joined:   make(map[string]struct{}),
	}
	c.dial = opts.Dial
	if c.dial == nil {
		c.dial = func(ctx context.Context) (Transport, error) {
			conn, _, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{
				HTTPHeader: http.Header{"Authorization": []string{"Bearer " + opts.Token}},
			})
			if err != nil {
				return nil, fmt.Errorf("client dial: %w", err)
			}
			return conn, nil
		}
	}

	return c, nil
}

// Self returns the identity behind this session.
func (c *Client) Self() domain.PresenceEntry { return c.opts.Identity }

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the transport and starts the read loop. After a transport
// drop the client reconnects on its own with backoff and replays its room
// joins; Connect is only called once per session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.transport != nil {
		c.mu.Unlock()
		return errors.New("client.Connect: already connected")
	}
	c.mu.Unlock()

	transport, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("client.Connect: %w", err)
	}

	c.attach(transport)
	return nil
}

// attach installs a live transport under a new epoch and starts its read loop.
func (c *Client) attach(transport Transport) {
	c.mu.Lock()
	c.epoch++
	c.transport = transport
	c.state = StateConnected
	epoch := c.epoch
	notify := c.opts.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(StateConnected)
	}

	go c.readLoop(transport, epoch)
}

// Close shuts the session down for good; no reconnect follows.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	transport := c.transport
	c.transport = nil
	c.state = StateDisconnected
	c.failPendingLocked()
	c.mu.Unlock()

	if transport != nil {
		return transport.Close(websocket.StatusNormalClosure, "session closed")
	}
	return nil
}

// On registers h for envelopes of the given type and returns a token for Off.
// Self-originated events are NOT filtered here; use OnEvent for that.
func (c *Client) On(typ string, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHandler++
	c.handlers[typ] = append(c.handlers[typ], handlerEntry{id: c.nextHandler, fn: h})
	return c.nextHandler
}

// OnEvent registers h for a domain event type with origin-echo suppression
// applied: envelopes triggered by this session's own user are discarded
// before h runs, because the local action already updated local state.
func (c *Client) OnEvent(typ domain.EventType, h Handler) int {
	self := c.opts.Identity.ID
	return c.On(string(typ), func(env wire.Envelope) {
		if env.TriggeredBy != nil && env.TriggeredBy.ID == self {
			return
		}
		h(env)
	})
}

// Off removes the handler registered under token for the given type.
func (c *Client) Off(typ string, token int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.handlers[typ]
	for i, e := range entries {
		if e.id == token {
			c.handlers[typ] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Emit sends a fire-and-forget room event (typing, editing, cursor).
func (c *Client) Emit(ctx context.Context, typ domain.EventType, room string, payload any) error {
	env, err := wire.NewRequest("", string(typ), room, payload)
	if err != nil {
		return fmt.Errorf("client.Emit: %w", err)
	}
	if err := c.write(ctx, env); err != nil {
		return fmt.Errorf("client.Emit: %w", err)
	}
	return nil
}

// call runs one request/ack exchange, bounded by RPCTimeout. A nack comes
// back as ErrRejected; an ack from a previous transport epoch is discarded
// in the read loop and surfaces here as a timeout or ErrDisconnected.
func (c *Client) call(ctx context.Context, typ, room string, payload any) (wire.AckPayload, error) {
	id := uuid.NewString()
	env, err := wire.NewRequest(id, typ, room, payload)
	if err != nil {
		return wire.AckPayload{}, err
	}

	ch := make(chan wire.Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wire.AckPayload{}, ErrClosed
	}
	if c.transport == nil {
		c.mu.Unlock()
		return wire.AckPayload{}, ErrDisconnected
	}
	c.pending[id] = pendingCall{epoch: c.epoch, ch: ch}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, env); err != nil {
		return wire.AckPayload{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.RPCTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return wire.AckPayload{}, fmt.Errorf("client: awaiting ack for %s: %w", typ, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return wire.AckPayload{}, ErrDisconnected
		}
		ack, err := resp.Ack()
		if err != nil {
			return wire.AckPayload{}, err
		}
		if !ack.OK {
			return ack, fmt.Errorf("%w: %s", ErrRejected, ack.Error)
		}
		return ack, nil
	}
}

func (c *Client) write(ctx context.Context, env wire.Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		return ErrDisconnected
	}
	return transport.Write(ctx, websocket.MessageText, frame)
}

// readLoop drains one transport. It exits when the transport fails, at
// which point the drop handler decides whether to reconnect.
func (c *Client) readLoop(transport Transport, epoch int) {
	ctx := context.Background()
	for {
		_, frame, err := transport.Read(ctx)
		if err != nil {
			c.dropped(transport, epoch)
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Debug().Err(err).Msg("client: bad frame")
			continue
		}

		if env.Type == wire.MsgAck {
			c.resolve(env, epoch)
			continue
		}

		c.dispatch(env)
	}
}

// resolve hands an ack to its waiting call. Acks whose pending call was
// registered against a different transport epoch are stale and dropped.
func (c *Client) resolve(env wire.Envelope, epoch int) {
	c.mu.Lock()
	call, ok := c.pending[env.ID]
	if ok && call.epoch == epoch {
		delete(c.pending, env.ID)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok {
		call.ch <- env
	}
}

func (c *Client) dispatch(env wire.Envelope) {
	c.mu.Lock()
	entries := append([]handlerEntry(nil), c.handlers[env.Type]...)
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(env)
	}
}

// failPendingLocked closes every waiting call channel. Callers see
// ErrDisconnected.
func (c *Client) failPendingLocked() {
	for id, call := range c.pending {
		delete(c.pending, id)
		close(call.ch)
	}
}

// dropped handles a transport failure: tear down session state bound to the
// old transport and, unless the client was closed, start the reconnect loop.
func (c *Client) dropped(transport Transport, epoch int) {
	_ = transport.Close(websocket.StatusAbnormalClosure, "read failed")

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.state = StateDisconnected
	c.failPendingLocked()
	startReconnect := !c.reconnecting
	c.reconnecting = startReconnect
	notify := c.opts.OnStateChange
	c.mu.Unlock()

	if notify != nil {
		notify(StateDisconnected)
	}
	if startReconnect {
		go c.reconnectLoop()
	}
}

// reconnectLoop redials with exponential backoff until it succeeds or the
// client is closed, then replays every room join held before the drop.
// Server-side membership did not survive the old transport; replay is the
// client's job.
func (c *Client) reconnectLoop() {
	delay := c.opts.ReconnectMinDelay

	for {
		time.Sleep(delay)

		c.mu.Lock()
		if c.closed {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		transport, err := c.dial(context.Background())
		if err != nil {
			log.Debug().Err(err).Dur("retry_in", delay).Msg("client: reconnect failed")
			delay *= 2
			if delay > c.opts.ReconnectMaxDelay {
				delay = c.opts.ReconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		c.reconnecting = false
		rooms := make([]string, 0, len(c.joined))
		for room := range c.joined {
			rooms = append(rooms, room)
		}
		c.mu.Unlock()

		c.attach(transport)
		c.replayJoins(rooms)
		return
	}
}

func (c *Client) replayJoins(rooms []string) {
	for _, room := range rooms {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RPCTimeout)
		_, err := c.call(ctx, wire.MsgJoin, room, nil)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("room", room).Msg("client: join replay failed")
		}
	}
}
