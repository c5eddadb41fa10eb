package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Payload is the opaque envelope a client submits. The relay never looks inside
// the three fields; they are copied byte-for-byte into outgoing envelopes.
type Payload struct {
	Content json.RawMessage `json:"content"`
	IV      json.RawMessage `json:"iv"`
	AuthTag json.RawMessage `json:"authTag"`
}

// DecodePayload parses an inbound frame. A frame is accepted when it is a JSON
// object carrying non-null content, iv and authTag values of any JSON type.
// Frames that are not valid UTF-8 are rejected, since their fields would be
// relayed to peers inside text frames.
func DecodePayload(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Payload{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	if !utf8.Valid(trimmed) {
		return Payload{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedPayload)
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	for _, f := range []struct {
		name  string
		value json.RawMessage
	}{
		{"content", p.Content},
		{"iv", p.IV},
		{"authTag", p.AuthTag},
	} {
		if isAbsent(f.value) {
			return Payload{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	return p, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
