package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// secp256k1SessionKeyInfo binds the HKDF context for session-key sealing to
// Secp256k1 peers, mirroring the Ed25519/HPKE path's sessionKeyInfo label.
var secp256k1SessionKeyInfo = []byte("ledgernode/session-key/secp256k1")

// EncryptSessionKeyForSecp256k1 seals plaintext to a client's Secp256k1
// public key using ephemeral-static ECDH (the x-coordinate of the shared
// point, HKDF-SHA256 derived) plus ChaCha20-Poly1305, an ECIES-style
// construction: since circl's HPKE only ships X25519/NIST-curve KEMs, not
// Secp256k1, this is the second supported client-key algorithm's own
// encrypt-to-peer path (spec's "session key delivered to the client's
// public key" applied to both algorithms this package supports).
//
// Wire format: ephemeral_compressed_pubkey(33) || nonce(12) || ciphertext.
func EncryptSessionKeyForSecp256k1(peerPub *secp256k1.PublicKey, plaintext []byte) ([]byte, error) {
	ephPriv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: generate ephemeral key: %w", err)
	}

	sharedX := scalarMultX(ephPriv.ToECDSA(), peerPub.ToECDSA())
	key, err := deriveSealKey(sharedX)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: build aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	ephPub := ephPriv.PubKey().SerializeCompressed()

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(ciphertext))
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// DecryptSessionKeyForSecp256k1 reverses EncryptSessionKeyForSecp256k1 using
// the node's own Secp256k1 private key.
func DecryptSessionKeyForSecp256k1(priv *secp256k1.PrivateKey, packet []byte) ([]byte, error) {
	const compressedLen = 33
	if len(packet) < compressedLen+chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("secp256k1 ecies: packet too short")
	}

	ephPub, err := secp256k1.ParsePubKey(packet[:compressedLen])
	if err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: parse ephemeral pubkey: %w", err)
	}
	rest := packet[compressedLen:]
	nonce := rest[:chacha20poly1305.NonceSize]
	ciphertext := rest[chacha20poly1305.NonceSize:]

	sharedX := scalarMultX(priv.ToECDSA(), ephPub.ToECDSA())
	key, err := deriveSealKey(sharedX)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: build aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: decrypt: %w", err)
	}
	return plaintext, nil
}

// scalarMultX returns the x-coordinate bytes of priv.D * pub on the curve
// both keys share (secp256k1, via its ECDSA-compatible elliptic.Curve).
func scalarMultX(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, _ := priv.Curve.ScalarMult(pub.X, pub.Y, priv.D.Bytes())
	return x.Bytes()
}

func deriveSealKey(sharedX []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, sharedX, nil, secp256k1SessionKeyInfo)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("secp256k1 ecies: derive key: %w", err)
	}
	return key, nil
}
