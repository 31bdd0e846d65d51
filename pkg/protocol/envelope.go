package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const ProtocolVersion = 1

// Envelope wraps every wire event with metadata. Inbound envelopes carry the
// event a peer emitted; outbound envelopes are stamped From="server" and, for
// directed sends, To=<peer id>.
type Envelope struct {
	V         int             `json:"v"`
	Event     string          `json:"event"`
	MsgID     string          `json:"msg_id"`
	SessionID string          `json:"session_id,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope for the given event, marshaling the payload.
func NewEnvelope(event string, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
	}
	return Envelope{
		V:       ProtocolVersion,
		Event:   event,
		MsgID:   NewMsgID(),
		Payload: raw,
	}, nil
}

// DecodePayload unmarshals the envelope's payload into out.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return errors.New("payload is empty")
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// ValidateBasic checks the fields every inbound envelope must carry.
func (e Envelope) ValidateBasic() error {
	if e.V != ProtocolVersion {
		return fmt.Errorf("invalid protocol version: got %d, expected %d", e.V, ProtocolVersion)
	}
	if e.Event == "" {
		return errors.New("event is required")
	}
	if e.MsgID == "" {
		return errors.New("msg_id is required")
	}
	return nil
}

// NewMsgID generates a unique message identifier.
func NewMsgID() string {
	return uuid.NewString()
}
