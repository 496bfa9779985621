// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package keys

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
	sagecrypto "github.com/universa-net/ledgernode/crypto"

	"github.com/cloudflare/circl/hpke"
)

// sessionKeyInfo binds HPKE sender and receiver to the session-key sealing
// context; it must be identical on both sides.
var sessionKeyInfo = []byte("ledgernode/session-key")

// X25519KeyPair holds an X25519 private key and its corresponding public key bytes.
type X25519KeyPair struct {
	privateKey *ecdh.PrivateKey
	publicKey  *ecdh.PublicKey
	id         string
}

// GenerateX25519KeyPair generates a new ephemeral X25519 key pair.
func GenerateX25519KeyPair() (sagecrypto.KeyPair, error) {
	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral ECDH key: %w", err)
	}
	publicKey := privateKey.PublicKey()

	pubKeyBytes := publicKey.Bytes()
	hash := sha256.Sum256(pubKeyBytes)
	id := hex.EncodeToString(hash[:8])

	return &X25519KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         id,
	}, nil
}

// PublicKey returns the public key
func (kp *X25519KeyPair) PublicKey() crypto.PublicKey {
	return kp.publicKey
}

// PublicBytesKey returns the public bytes key
func (kp *X25519KeyPair) PublicBytesKey() []byte {
	return kp.publicKey.Bytes()
}

// PrivateKey returns the private key
func (kp *X25519KeyPair) PrivateKey() crypto.PrivateKey {
	return kp.privateKey
}

// Type returns the key type
func (kp *X25519KeyPair) Type() sagecrypto.KeyType {
	return sagecrypto.KeyTypeX25519
}

// ID returns a unique identifier for this key pair
func (kp *X25519KeyPair) ID() string {
	return kp.id
}

// Sign returns an error as X25519 is a key agreement algorithm and does not support signing operations.
func (kp *X25519KeyPair) Sign(message []byte) ([]byte, error) {
	return nil, sagecrypto.ErrSignNotSupported
}

// Verify returns an error as X25519 is a key agreement algorithm and does not support signature verification.
func (kp *X25519KeyPair) Verify(message, signature []byte) error {
	return sagecrypto.ErrVerifyNotSupported
}

// DeriveSharedSecret computes a 32-byte key from an X25519 ECDH exchange.
// Given our private key and peer's public key bytes, it returns
// SHA-256 of the raw 32-byte ECDH shared secret.
func (kp *X25519KeyPair) DeriveSharedSecret(peerPubBytes []byte) ([]byte, error) {
	curve := ecdh.X25519()
	peerPub, err := curve.NewPublicKey(peerPubBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer public key: %w", err)
	}

	shared, err := sharedSecret(kp.privateKey.ECDH(peerPub))
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	sum := sha256.Sum256(shared)
	return sum[:], nil
}

// ValidateEd25519PublicKey decodes raw Ed25519 public key bytes as a curve
// point, surfacing a malformed client key (BAD_CLIENT_KEY territory) before
// any HPKE conversion or verification is attempted.
func ValidateEd25519PublicKey(pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return sagecrypto.ErrInvalidPublicKey
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return sagecrypto.ErrInvalidPublicKey
	}
	return nil
}

// convertEd25519PrivToX25519 turns an Ed25519 private key into the X25519 scalar.
func convertEd25519PrivToX25519(privKey crypto.PrivateKey) ([]byte, error) {
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected ed25519.PrivateKey, got %T", privKey)
	}

	if l := len(edPriv); l != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bad Ed25519 priv length: %d", l)
	}
	seed := edPriv.Seed()
	h := sha512.Sum512(seed) // RFC8032 §5.1.5
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var xPriv [32]byte
	copy(xPriv[:], h[:32])
	return xPriv[:], nil
}

// convertEd25519PubToX25519 turns an Ed25519 public key into the X25519 public key.
func convertEd25519PubToX25519(pubKey crypto.PublicKey) ([]byte, error) {
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected ed25519.PublicKey, got %T", pubKey)
	}
	if err := ValidateEd25519PublicKey(edPub); err != nil {
		return nil, err
	}

	P, err := new(edwards25519.Point).SetBytes(edPub)
	if err != nil {
		return nil, fmt.Errorf("invalid Ed25519 pub: %w", err)
	}
	return P.BytesMontgomery(), nil
}

func sharedSecret(dh []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	var zero [32]byte
	if subtle.ConstantTimeCompare(dh, zero[:]) == 1 {
		return nil, fmt.Errorf("x25519: low-order or identity point")
	}
	return dh, nil
}

// hpkeSuite is the fixed RFC 9180 Base-mode suite used to seal session keys
// to a client's X25519-converted Ed25519 public key.
func hpkeSuite() hpke.Suite {
	return hpke.NewSuite(
		hpke.KEM_X25519_HKDF_SHA256,
		hpke.KDF_HKDF_SHA256,
		hpke.AEAD_ChaCha20Poly1305,
	)
}

// HPKESealAndExportToX25519Peer establishes an HPKE Base sender context to
// peer and seals plaintext under it (aad = info), also exporting a secret
// of exportLen bytes from the same context.
func HPKESealAndExportToX25519Peer(
	peer crypto.PublicKey,
	plaintext []byte,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (packet []byte, exporterSecret []byte, err error) {
	pubKey, ok := peer.(*ecdh.PublicKey)
	if !ok {
		return nil, nil, fmt.Errorf("hpke: invalid key type, expected ECDH but got %T", peer)
	}
	suite := hpkeSuite()

	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	rp, err := kem.UnmarshalBinaryPublicKey(pubKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("hpke unmarshal pub: %w", err)
	}

	sender, err := suite.NewSender(rp, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke new sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke setup: %w", err)
	}

	ct, err := sealer.Seal(plaintext, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke seal: %w", err)
	}

	secret := sealer.Export(exportCtx, uint(exportLen))
	return append(append([]byte{}, enc...), ct...), secret, nil
}

// HPKEOpenAndExportWithX25519Priv reverses HPKESealAndExportToX25519Peer.
func HPKEOpenAndExportWithX25519Priv(
	priv crypto.PrivateKey,
	packet []byte,
	info []byte,
	exportCtx []byte,
	exportLen int,
) (plaintext []byte, exporterSecret []byte, err error) {
	privKey, ok := priv.(*ecdh.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("hpke: invalid key type, expected ECDH but got %T", priv)
	}

	const encLen = 32 // X25519 KEM enc length
	if len(packet) < encLen {
		return nil, nil, fmt.Errorf("packet too short: %d", len(packet))
	}
	enc := packet[:encLen]
	ct := packet[encLen:]

	suite := hpkeSuite()

	kem := hpke.KEM_X25519_HKDF_SHA256.Scheme()
	skR, err := kem.UnmarshalBinaryPrivateKey(privKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("hpke unmarshal priv: %w", err)
	}

	receiver, err := suite.NewReceiver(skR, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke new receiver: %w", err)
	}

	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke receiver setup: %w", err)
	}

	pt, err := opener.Open(ct, info)
	if err != nil {
		return nil, nil, fmt.Errorf("hpke open: %w", err)
	}

	secret := opener.Export(exportCtx, uint(exportLen))
	return pt, secret, nil
}

// EncryptSessionKey seals plaintext (the freshly generated session key blob)
// to a client's Ed25519 public key: the key is converted to its X25519
// Montgomery form and used as the HPKE KEM recipient key. This is the C4
// step 3 "encrypt the inner blob with the client's public key" operation.
func EncryptSessionKey(edPeerPub crypto.PublicKey, plaintext []byte) ([]byte, error) {
	peerX, err := convertEd25519PubToX25519(edPeerPub)
	if err != nil {
		return nil, err
	}
	peerPubKey, err := ecdh.X25519().NewPublicKey(peerX)
	if err != nil {
		return nil, err
	}

	packet, _, err := HPKESealAndExportToX25519Peer(peerPubKey, plaintext, sessionKeyInfo, nil, 0)
	return packet, err
}

// DecryptSessionKey reverses EncryptSessionKey using the node's own Ed25519
// private key, converted to the matching X25519 scalar.
func DecryptSessionKey(edPriv crypto.PrivateKey, packet []byte) ([]byte, error) {
	selfXPrivBytes, err := convertEd25519PrivToX25519(edPriv)
	if err != nil {
		return nil, err
	}
	selfXPrivKey, err := ecdh.X25519().NewPrivateKey(selfXPrivBytes)
	if err != nil {
		return nil, err
	}

	pt, _, err := HPKEOpenAndExportWithX25519Priv(selfXPrivKey, packet, sessionKeyInfo, nil, 0)
	return pt, err
}
