package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope type discriminators sent to clients.
const (
	EnvelopeKey     = "key"
	EnvelopeMessage = "message"
	EnvelopeDelete  = "delete"
)

// KeyEnvelope delivers the shared secret once per connection.
type KeyEnvelope struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// MessageEnvelope is the fan-out of an accepted payload.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	MessageID uuid.UUID       `json:"messageId"`
	SenderID  uuid.UUID       `json:"senderId"`
	Content   json.RawMessage `json:"content"`
	IV        json.RawMessage `json:"iv"`
	AuthTag   json.RawMessage `json:"authTag"`
}

// DeleteEnvelope announces that a record left retention.
type DeleteEnvelope struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"messageId"`
}

func NewKeyEnvelope(encodedKey string) KeyEnvelope {
	return KeyEnvelope{Type: EnvelopeKey, Key: encodedKey}
}

func NewMessageEnvelope(rec Record) MessageEnvelope {
	return MessageEnvelope{
		Type:      EnvelopeMessage,
		MessageID: rec.ID,
		SenderID:  rec.SenderID,
		Content:   rec.Payload.Content,
		IV:        rec.Payload.IV,
		AuthTag:   rec.Payload.AuthTag,
	}
}

func NewDeleteEnvelope(id uuid.UUID) DeleteEnvelope {
	return DeleteEnvelope{Type: EnvelopeDelete, MessageID: id}
}

// InboundEnvelope is the client-side view of any server frame; only the fields
// relevant to Type are populated.
type InboundEnvelope struct {
	Type      string          `json:"type"`
	Key       string          `json:"key,omitempty"`
	MessageID uuid.UUID       `json:"messageId"`
	SenderID  uuid.UUID       `json:"senderId"`
	Content   json.RawMessage `json:"content,omitempty"`
	IV        json.RawMessage `json:"iv,omitempty"`
	AuthTag   json.RawMessage `json:"authTag,omitempty"`
}
