// Package cryptox seals credential secrets before they reach the database.
// Access and refresh tokens are stored as base64 ciphertext, everything else
// stays plain.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrCiphertextInvalid = errors.New("ciphertext is malformed or key mismatch")

// Box encrypts and decrypts short strings with ChaCha20-Poly1305.
// The key is derived from the configured secret with SHA-256, so any
// non-empty passphrase works.
type Box struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, errors.New("encryption secret must not be empty")
	}

	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Seal encrypts plain and returns base64(nonce || ciphertext).
// Empty input stays empty so optional fields (refresh tokens) round-trip.
func (b *Box) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCiphertextInvalid, err)
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return "", ErrCiphertextInvalid
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCiphertextInvalid, err)
	}

	return string(plain), nil
}
