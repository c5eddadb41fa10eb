package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pscheid92/chatrelay/internal/domain"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
)

var (
	ErrInvalidKey = errors.New("invalid shared key")
	ErrDecrypt    = errors.New("failed to decrypt payload")
)

// SharedKey is the single symmetric key distributed to every client.
type SharedKey [KeySize]byte

func NewSharedKey() (SharedKey, error) {
	return readSharedKey(rand.Reader)
}

func readSharedKey(r io.Reader) (SharedKey, error) {
	var k SharedKey
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return SharedKey{}, fmt.Errorf("failed to generate shared key: %w", err)
	}
	return k, nil
}

// ParseSharedKey decodes a standard base64 key of exactly KeySize bytes.
func ParseSharedKey(encoded string) (SharedKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return SharedKey{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if len(raw) != KeySize {
		return SharedKey{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(raw), KeySize)
	}

	var k SharedKey
	copy(k[:], raw)
	return k, nil
}

func (k SharedKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Cipher seals and opens payloads under a SharedKey.
type Cipher struct {
	gcm   cipher.AEAD
	nonce io.Reader
}

func NewCipher(key SharedKey) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{gcm: gcm, nonce: rand.Reader}, nil
}

// Seal encrypts plaintext under a fresh nonce.
func (c *Cipher) Seal(plaintext []byte) (domain.Payload, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.nonce, nonce); err != nil {
		return domain.Payload{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal returns ciphertext || tag
	sealed := c.gcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return domain.Payload{
		Content: encodeField(sealed[:split]),
		IV:      encodeField(nonce),
		AuthTag: encodeField(sealed[split:]),
	}, nil
}

// Open reverses Seal. Any tampering with the three fields yields ErrDecrypt.
func (c *Cipher) Open(p domain.Payload) ([]byte, error) {
	content, err := decodeField("content", p.Content)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeField("iv", p.IV)
	if err != nil {
		return nil, err
	}
	tag, err := decodeField("authTag", p.AuthTag)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, fmt.Errorf("%w: bad iv or tag length", ErrDecrypt)
	}

	plaintext, err := c.gcm.Open(nil, nonce, append(content, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plaintext, nil
}

func encodeField(b []byte) json.RawMessage {
	// a base64 string never needs escaping
	return json.RawMessage(`"` + base64.StdEncoding.EncodeToString(b) + `"`)
}

func decodeField(name string, raw json.RawMessage) ([]byte, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s is not a string", ErrDecrypt, name)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecrypt, name, err)
	}
	return b, nil
}
