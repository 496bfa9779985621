package session

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// SealWithKey encrypts plaintext under key using ChaCha20-Poly1305,
// producing nonce||ciphertext, the same framing the teacher's
// SecureSession.Encrypt used for its session traffic.
func SealWithKey(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("session: build aead: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("session: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, len(nonce)+len(ciphertext))
	copy(out, nonce)
	copy(out[len(nonce):], ciphertext)
	return out, nil
}

// OpenWithKey decrypts data produced by SealWithKey.
func OpenWithKey(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("session: build aead: %w", err)
	}

	if len(data) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("session: ciphertext too short")
	}

	nonce := data[:chacha20poly1305.NonceSize]
	ciphertext := data[chacha20poly1305.NonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("session: decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateSessionKey produces a fresh random ChaCha20-Poly1305 key for
// a newly-keyed session.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("session: generate key: %w", err)
	}
	return key, nil
}
