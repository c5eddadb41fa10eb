package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) SharedKey {
	t.Helper()
	k, err := readSharedKey(bytes.NewReader(bytes.Repeat([]byte{7}, KeySize)))
	require.NoError(t, err)
	return k
}

func TestNewSharedKey_Random(t *testing.T) {
	a, err := NewSharedKey()
	require.NoError(t, err)
	b, err := NewSharedKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNewSharedKey_ShortEntropy(t *testing.T) {
	_, err := readSharedKey(strings.NewReader("short"))
	assert.Error(t, err)
}

func TestSharedKey_Base64RoundTrip(t *testing.T) {
	k := testKey(t)
	encoded := k.Base64()

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Len(t, raw, KeySize)

	parsed, err := ParseSharedKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestParseSharedKey_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!"},
		{"too short", base64.StdEncoding.EncodeToString(make([]byte, 31))},
		{"too long", base64.StdEncoding.EncodeToString(make([]byte, 33))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSharedKey(tt.encoded)
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestCipher_SealOpen(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	p, err := c.Seal([]byte("hello relay"))
	require.NoError(t, err)

	var iv, tag string
	require.NoError(t, json.Unmarshal(p.IV, &iv))
	require.NoError(t, json.Unmarshal(p.AuthTag, &tag))
	ivRaw, _ := base64.StdEncoding.DecodeString(iv)
	tagRaw, _ := base64.StdEncoding.DecodeString(tag)
	assert.Len(t, ivRaw, NonceSize)
	assert.Len(t, tagRaw, TagSize)

	plaintext, err := c.Open(p)
	require.NoError(t, err)
	assert.Equal(t, "hello relay", string(plaintext))
}

func TestCipher_SealedPayloadPassesRelayValidation(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	p, err := c.Seal([]byte("x"))
	require.NoError(t, err)

	frame, err := json.Marshal(p)
	require.NoError(t, err)
	decoded, err := domain.DecodePayload(frame)
	require.NoError(t, err)

	plaintext, err := c.Open(decoded)
	require.NoError(t, err)
	assert.Equal(t, "x", string(plaintext))
}

func TestCipher_UniqueNonces(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	a, err := c.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := c.Seal([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, string(a.IV), string(b.IV))
	assert.NotEqual(t, string(a.Content), string(b.Content))
}

func TestCipher_OpenRejectsTampering(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)
	p, err := c.Seal([]byte("secret"))
	require.NoError(t, err)

	otherKey, err := NewSharedKey()
	require.NoError(t, err)
	other, err := NewCipher(otherKey)
	require.NoError(t, err)

	flipped := p
	flipped.AuthTag = encodeField(make([]byte, TagSize))

	tests := []struct {
		name   string
		cipher *Cipher
		p      domain.Payload
	}{
		{"wrong key", other, p},
		{"forged tag", c, flipped},
		{"iv not a string", c, domain.Payload{Content: p.Content, IV: json.RawMessage(`42`), AuthTag: p.AuthTag}},
		{"iv not base64", c, domain.Payload{Content: p.Content, IV: json.RawMessage(`"***"`), AuthTag: p.AuthTag}},
		{"short iv", c, domain.Payload{Content: p.Content, IV: encodeField([]byte{1, 2}), AuthTag: p.AuthTag}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cipher.Open(tt.p)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

func TestCipher_EmptyPlaintext(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	p, err := c.Seal(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `""`, string(p.Content))

	plaintext, err := c.Open(p)
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}
