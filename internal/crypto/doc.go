// Package crypto holds the relay's shared key and the AES-256-GCM envelope
// encryption clients use for payloads.
//
// The relay itself only generates and hands out the key; it never calls Open.
// Cipher produces the {content, iv, authTag} triple with each part base64
// encoded and the 16-byte GCM tag split from the ciphertext.
package crypto
