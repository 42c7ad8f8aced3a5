package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kanbu/realtime/pkg/domain"
)

// Envelope is the single wire frame exchanged over the event stream.
// Client requests carry a correlation ID and are answered with an "ack"
// frame bearing the same ID; broadcast events carry the identity that
// triggered them and an emission timestamp instead.
type Envelope struct {
	Type        string                `json:"type"`
	ID          string                `json:"id,omitempty"`
	Room        string                `json:"room,omitempty"`
	TriggeredBy *domain.PresenceEntry `json:"triggeredBy,omitempty"`
	Timestamp   time.Time             `json:"timestamp,omitzero"`
	Payload     json.RawMessage       `json:"payload,omitempty"`
}

// Control frame types. Everything else on the wire is a domain.EventType.
const (
	MsgJoin            = "join"
	MsgLeave           = "leave"
	MsgPresenceRequest = "presence:request"
	MsgAck             = "ack"
)

// AckPayload is the response body of a request/ack exchange.
type AckPayload struct {
	OK      bool                   `json:"ok"`
	Error   string                 `json:"error,omitempty"`
	Members []domain.PresenceEntry `json:"members,omitempty"`
}

// NewEvent builds a broadcast envelope for a domain event.
func NewEvent(typ domain.EventType, room string, by domain.PresenceEntry, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire.NewEvent: %w", err)
	}

	return Envelope{
		Type:        string(typ),
		Room:        room,
		TriggeredBy: &by,
		Timestamp:   time.Now().UTC(),
		Payload:     raw,
	}, nil
}

// NewRequest builds a client request envelope with a correlation ID.
func NewRequest(id, typ, room string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, ID: id, Room: room}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("wire.NewRequest: %w", err)
		}
		env.Payload = raw
	}

	return env, nil
}

// NewAck builds the ack envelope answering the request with the given ID.
func NewAck(id string, p AckPayload) (Envelope, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire.NewAck: %w", err)
	}

	return Envelope{Type: MsgAck, ID: id, Payload: raw}, nil
}

// Ack decodes the payload of an ack envelope.
func (e Envelope) Ack() (AckPayload, error) {
	var p AckPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return AckPayload{}, fmt.Errorf("wire.Envelope.Ack: %w", err)
	}
	return p, nil
}
