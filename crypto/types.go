package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies the signature algorithm backing a KeyPair.
type KeyType string

const (
	KeyTypeEd25519   KeyType = "Ed25519"
	KeyTypeSecp256k1 KeyType = "Secp256k1"
	KeyTypeX25519    KeyType = "X25519"
)

// KeyPair is the minimal signing/identity collaborator the session and
// handshake packages depend on. Concrete algorithms live under crypto/keys.
type KeyPair interface {
	// PublicKey returns the public key.
	PublicKey() crypto.PublicKey

	// PrivateKey returns the private key.
	PrivateKey() crypto.PrivateKey

	// Type returns the key type.
	Type() KeyType

	// Sign signs the given message.
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature.
	Verify(message, signature []byte) error

	// ID returns a unique identifier for this key pair.
	ID() string
}

// Common errors returned by crypto/keys implementations.
var (
	ErrInvalidKeyType    = errors.New("invalid key type")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrSignNotSupported  = errors.New("sign not supported for this key type")
	ErrVerifyNotSupported = errors.New("verify not supported for this key type")
	ErrInvalidPublicKey  = errors.New("invalid public key encoding")
)
