package realtime

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kanbu/realtime/pkg/domain"
)

// socket abstracts the websocket transport so connection handling can be
// exercised without a network listener.
type socket interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Conn is one connected client session. It owns a bounded outbound queue
// drained by a single writer goroutine, which gives every member one
// ordered delivery stream.
type Conn struct {
	id       uuid.UUID
	identity domain.PresenceEntry
	sock     socket
	send     chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(identity domain.PresenceEntry, sock socket, buffer int) *Conn {
	return &Conn{
		id:       uuid.New(),
		identity: identity,
		sock:     sock,
		send:     make(chan []byte, buffer),
		closed:   make(chan struct{}),
	}
}

// Identity returns the authenticated user behind this connection.
func (c *Conn) Identity() domain.PresenceEntry { return c.identity }

// enqueue places a frame on the outbound queue without blocking.
// Returns false when the queue is full or the connection is closing;
// the caller is expected to drop the connection.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// shutdown closes the underlying socket once, which unblocks the read loop.
func (c *Conn) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.sock.Close(code, reason)
	})
}

// writePump drains the send queue onto the socket.
func (c *Conn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := c.sock.Write(ctx, websocket.MessageText, frame); err != nil {
				log.Debug().Err(err).Str("conn", c.id.String()).Msg("websocket write")
				c.shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}
