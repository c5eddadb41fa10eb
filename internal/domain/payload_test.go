package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_Valid(t *testing.T) {
	p, err := DecodePayload([]byte(`{"content":"c1","iv":"i1","authTag":"t1"}`))
	require.NoError(t, err)

	assert.JSONEq(t, `"c1"`, string(p.Content))
	assert.JSONEq(t, `"i1"`, string(p.IV))
	assert.JSONEq(t, `"t1"`, string(p.AuthTag))
}

func TestDecodePayload_OpaqueValuesKeptVerbatim(t *testing.T) {
	p, err := DecodePayload([]byte(`{"content":{"a":[1,2]},"iv":[0,1,2],"authTag":42,"extra":true}`))
	require.NoError(t, err)

	assert.Equal(t, `{"a":[1,2]}`, string(p.Content))
	assert.Equal(t, `[0,1,2]`, string(p.IV))
	assert.Equal(t, `42`, string(p.AuthTag))
}

func TestDecodePayload_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", ``, ErrMalformedPayload},
		{"not json", `hello`, ErrMalformedPayload},
		{"array", `[1,2,3]`, ErrMalformedPayload},
		{"string", `"content"`, ErrMalformedPayload},
		{"truncated object", `{"content":"c1"`, ErrMalformedPayload},
		{"invalid utf8 in string", "{\"content\":\"\xff\xfe\",\"iv\":\"i1\",\"authTag\":\"t1\"}", ErrMalformedPayload},
		{"invalid utf8 in ignored field", "{\"content\":\"c1\",\"iv\":\"i1\",\"authTag\":\"t1\",\"x\":\"\xc3\"}", ErrMalformedPayload},
		{"missing content", `{"iv":"i1","authTag":"t1"}`, ErrMissingField},
		{"missing iv", `{"content":"c1","authTag":"t1"}`, ErrMissingField},
		{"missing authTag", `{"content":"c1","iv":"i1"}`, ErrMissingField},
		{"null content", `{"content":null,"iv":"i1","authTag":"t1"}`, ErrMissingField},
		{"snake case tag", `{"content":"c1","iv":"i1","auth_tag":"t1"}`, ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMessageEnvelope_WireShape(t *testing.T) {
	rec := Record{
		ID:        uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000001"),
		SenderID:  uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000002"),
		ArrivedAt: time.Unix(0, 0),
		Payload: Payload{
			Content: json.RawMessage(`"c1"`),
			IV:      json.RawMessage(`"i1"`),
			AuthTag: json.RawMessage(`"t1"`),
		},
	}

	data, err := json.Marshal(NewMessageEnvelope(rec))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "message",
		"messageId": "6f1d7a3e-0000-4000-8000-000000000001",
		"senderId": "6f1d7a3e-0000-4000-8000-000000000002",
		"content": "c1",
		"iv": "i1",
		"authTag": "t1"
	}`, string(data))
}

func TestDeleteAndKeyEnvelope_WireShape(t *testing.T) {
	id := uuid.MustParse("6f1d7a3e-0000-4000-8000-000000000003")

	data, err := json.Marshal(NewDeleteEnvelope(id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete","messageId":"6f1d7a3e-0000-4000-8000-000000000003"}`, string(data))

	data, err = json.Marshal(NewKeyEnvelope("a2V5"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"key","key":"a2V5"}`, string(data))
}

func TestRecord_Expired(t *testing.T) {
	arrived := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{ArrivedAt: arrived}

	assert.False(t, rec.Expired(arrived.Add(4*time.Minute+59*time.Second), 5*time.Minute))
	assert.True(t, rec.Expired(arrived.Add(5*time.Minute), 5*time.Minute), "age equal to lifetime is expired")
	assert.True(t, rec.Expired(arrived.Add(6*time.Minute), 5*time.Minute))
	assert.False(t, rec.Expired(arrived.Add(-time.Second), 5*time.Minute))
}
