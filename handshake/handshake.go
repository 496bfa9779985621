// Package handshake implements the Handshake Protocol (C4): the
// connect/get_token state machine that takes a client from an unseen
// public key through to a negotiated symmetric session key, plus the
// changeKeyFor administrative rekey operation.
package handshake

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	sagecrypto "github.com/universa-net/ledgernode/crypto"
	"github.com/universa-net/ledgernode/crypto/keys"
	"github.com/universa-net/ledgernode/errset"
	"github.com/universa-net/ledgernode/internal/metrics"
	"github.com/universa-net/ledgernode/session"
	"github.com/universa-net/ledgernode/wire"
)

const secp256k1CompressedLen = 33

// ParseClientKey recognises either a 32-byte Ed25519 public key or a
// 33-byte compressed Secp256k1 public key, the two client-key
// algorithms this node accepts. A malformed key of either apparent
// shape, or a length matching neither, is reported as an error so the
// router can surface BAD_CLIENT_KEY.
func ParseClientKey(raw []byte) (sagecrypto.KeyPair, error) {
	switch len(raw) {
	case ed25519.PublicKeySize:
		if err := keys.ValidateEd25519PublicKey(raw); err != nil {
			return nil, err
		}
		return keys.NewPublicKeyOnlyEd25519(ed25519.PublicKey(raw), ""), nil
	case secp256k1CompressedLen:
		return keys.NewPublicKeyOnlySecp256k1(raw, "")
	default:
		return nil, sagecrypto.ErrInvalidPublicKey
	}
}

// Handshake runs the C4 state machine against session records drawn
// from a Registry, signing its side of the handshake with the node's
// own key pair.
type Handshake struct {
	Registry *session.Registry
	NodeKey  sagecrypto.KeyPair
}

// New constructs a Handshake bound to the given registry and node
// identity.
func New(registry *session.Registry, nodeKey sagecrypto.KeyPair) *Handshake {
	return &Handshake{Registry: registry, NodeKey: nodeKey}
}

// Connect resolves or creates the Session Record for clientKeyBytes
// and runs the record's idempotent nonce issuance. Connect acquires
// rec.Mu itself for the nonce issuance, so callers must not already
// hold it.
func (h *Handshake) Connect(clientKeyBytes []byte) (*session.Record, wire.Map, error) {
	metrics.HandshakesInitiated.WithLabelValues("server").Inc()

	if _, err := ParseClientKey(clientKeyBytes); err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_client_key").Inc()
		return nil, nil, errset.NewBadClientKey("client_key", err.Error())
	}

	rec := h.Registry.GetOrCreate(clientKeyBytes)
	rec.Mu.Lock()
	defer rec.Mu.Unlock()
	rec.BeginRequest()

	nonce, sessionID, err := rec.Connect()
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("nonce_issue").Inc()
		return rec, nil, fmt.Errorf("handshake: connect: %w", err)
	}

	return rec, wire.Map{
		"server_nonce": nonce,
		"session_id":   sessionID,
	}, nil
}

// GetToken runs the full C4 get_token contract against rec, which the
// caller must already hold locked (it was resolved by session id
// through the registry, per the router's /get_token dispatch).
// Signature or nonce-mismatch failures are accumulated on rec's error
// list and reported through rec.Answer(nil), matching the spec's
// "accumulate ... and return null" behavior.
func (h *Handshake) GetToken(rec *session.Record, request wire.Map) wire.Map {
	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.WithLabelValues("get_token").Observe(time.Since(start).Seconds())
	}()

	rec.BeginRequest()

	data, err := request.GetBytes("data")
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_value").Inc()
		rec.Errors().Add(errset.NewBadValue("data", "missing or wrong type"))
		return rec.Answer(nil)
	}
	signature, err := request.GetBytes("signature")
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_value").Inc()
		rec.Errors().Add(errset.NewBadValue("signature", "missing or wrong type"))
		return rec.Answer(nil)
	}

	clientKey, err := ParseClientKey(rec.PublicKey())
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_client_key").Inc()
		rec.Errors().Add(errset.NewBadClientKey("client_key", err.Error()))
		return rec.Answer(nil)
	}

	verifyStart := time.Now()
	verifyErr := clientKey.Verify(data, signature)
	metrics.CryptoOperationDuration.WithLabelValues("verify", string(clientKey.Type())).Observe(time.Since(verifyStart).Seconds())
	if verifyErr != nil {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		metrics.HandshakesFailed.WithLabelValues("signature_invalid").Inc()
		rec.Errors().Add(errset.NewBadValue("signed_data", "signature verification failed"))
		return rec.Answer(nil)
	}
	metrics.CryptoOperations.WithLabelValues("verify", string(clientKey.Type())).Inc()

	inner, err := wire.Unpack(data)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_value").Inc()
		rec.Errors().Add(errset.NewBadValue("data", "unparsable signed payload"))
		return rec.Answer(nil)
	}

	serverNonce, err := inner.GetBytes("server_nonce")
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_value").Inc()
		rec.Errors().Add(errset.NewBadValue("server_nonce", "missing or wrong type"))
		return rec.Answer(nil)
	}
	clientNonce, err := inner.GetBytes("client_nonce")
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("bad_value").Inc()
		rec.Errors().Add(errset.NewBadValue("client_nonce", "missing or wrong type"))
		return rec.Answer(nil)
	}

	if !bytes.Equal(serverNonce, rec.ServerNonce()) {
		metrics.HandshakesFailed.WithLabelValues("nonce_mismatch").Inc()
		rec.Errors().Add(errset.NewBadValue("server_nonce", "nonce mismatch"))
		return rec.Answer(nil)
	}

	if !rec.IsKeyed() {
		if err := h.completeKeying(rec); err != nil {
			metrics.HandshakesFailed.WithLabelValues("keying_failed").Inc()
			rec.Errors().Add(errset.NewFailure("get_token", err.Error()))
			return rec.Answer(nil)
		}
	}

	outer := wire.Map{
		"client_nonce":    clientNonce,
		"encrypted_token": rec.EncryptedAnswer(),
	}
	packedOuter, err := wire.Pack(outer)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues("internal").Inc()
		rec.Errors().Add(errset.NewFailure("get_token", "failed to pack token"))
		return rec.Answer(nil)
	}

	signStart := time.Now()
	nodeSignature, err := h.NodeKey.Sign(packedOuter)
	metrics.CryptoOperationDuration.WithLabelValues("sign", string(h.NodeKey.Type())).Observe(time.Since(signStart).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
		metrics.HandshakesFailed.WithLabelValues("internal").Inc()
		rec.Errors().Add(errset.NewFailure("get_token", "failed to sign token"))
		return rec.Answer(nil)
	}
	metrics.CryptoOperations.WithLabelValues("sign", string(h.NodeKey.Type())).Inc()

	return rec.Answer(wire.Map{
		"data":      packedOuter,
		"signature": nodeSignature,
	})
}

// completeKeying generates a fresh symmetric session key, seals it to
// the client's public key, and caches the result as rec's
// encrypted_answer (spec §4.4 get_token step 3).
func (h *Handshake) completeKeying(rec *session.Record) error {
	key, err := session.GenerateSessionKey()
	if err != nil {
		return err
	}

	innerBlob, err := wire.Pack(wire.Map{"sk": key})
	if err != nil {
		return fmt.Errorf("pack session key blob: %w", err)
	}

	encryptStart := time.Now()
	encrypted, err := encryptToClient(rec.PublicKey(), innerBlob)
	metrics.CryptoOperationDuration.WithLabelValues("encrypt", algorithmFor(rec.PublicKey())).Observe(time.Since(encryptStart).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		return fmt.Errorf("encrypt session key: %w", err)
	}
	metrics.CryptoOperations.WithLabelValues("encrypt", algorithmFor(rec.PublicKey())).Inc()

	rec.SetSessionKey(key)
	rec.SetEncryptedAnswer(encrypted)
	return nil
}

// encryptToClient seals plaintext to a client's raw public key bytes,
// using HPKE for Ed25519 clients and ECDH+AEAD for Secp256k1 clients
// (see crypto/keys for both constructions).
func encryptToClient(rawPub, plaintext []byte) ([]byte, error) {
	switch len(rawPub) {
	case ed25519.PublicKeySize:
		return keys.EncryptSessionKey(ed25519.PublicKey(rawPub), plaintext)
	case secp256k1CompressedLen:
		pub, err := secp256k1.ParsePubKey(rawPub)
		if err != nil {
			return nil, err
		}
		return keys.EncryptSessionKeyForSecp256k1(pub, plaintext)
	default:
		return nil, sagecrypto.ErrInvalidPublicKey
	}
}

// algorithmFor reports the client-key algorithm for a raw public key,
// for the crypto metrics' "algorithm" label; encryptToClient already
// switches on the same length distinction.
func algorithmFor(rawPub []byte) string {
	switch len(rawPub) {
	case ed25519.PublicKeySize:
		return string(sagecrypto.KeyTypeEd25519)
	case secp256k1CompressedLen:
		return string(sagecrypto.KeyTypeSecp256k1)
	default:
		return "unknown"
	}
}

// ChangeKeyFor clears the session key for the record matching
// publicKeyBytes, forcing the next command to fail until a fresh
// get_token completes.
func (h *Handshake) ChangeKeyFor(publicKeyBytes []byte) {
	h.Registry.ChangeKeyFor(publicKeyBytes)
}
