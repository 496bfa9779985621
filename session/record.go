// Package session implements the per-client Session Record (C2) and
// the concurrent Session Registry that indexes records by public key
// and by numeric session id (C3).
package session

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/universa-net/ledgernode/errset"
	"github.com/universa-net/ledgernode/wire"
)

// ServerNonceSize is the length of the nonce issued on connect.
const ServerNonceSize = 48

// State names a position in the per-record handshake state machine.
// It is derived from which fields are set, never stored directly.
type State string

const (
	StateNew         State = "NEW"
	StateNonceIssued State = "NONCE_ISSUED"
	StateKeyed       State = "KEYED"
)

// Record is one client's authentication state: its identity, its
// handshake nonce, its negotiated symmetric key (once keyed), the
// cached encrypted answer, and the per-request error accumulator.
//
// Mu must be held by callers (handshake, command, router) across an
// entire request against this record, per the one-writer-at-a-time
// invariant; Record itself never locks internally so the router can
// hold the critical section across multiple calls (clear errors, run
// handler, build answer) without re-entrant locking.
type Record struct {
	Mu sync.Mutex

	publicKey       []byte
	sessionID       int64
	serverNonce     []byte
	sessionKey      []byte
	encryptedAnswer []byte
	errors          errset.Accumulator
}

// NewRecord constructs a Session Record for publicKey with the given
// session id. It does not generate the server nonce; that happens
// lazily on the first Connect, matching the NEW state's entry
// condition in spec's state table.
func NewRecord(publicKey []byte, sessionID int64) *Record {
	pk := make([]byte, len(publicKey))
	copy(pk, publicKey)
	return &Record{publicKey: pk, sessionID: sessionID}
}

// PublicKey returns the client identity this record is keyed on.
func (r *Record) PublicKey() []byte {
	return r.publicKey
}

// SessionID returns the record's stable numeric handle.
func (r *Record) SessionID() int64 {
	return r.sessionID
}

// ServerNonce returns the issued nonce, or nil if Connect has never
// been called.
func (r *Record) ServerNonce() []byte {
	return r.serverNonce
}

// SessionKey returns the negotiated symmetric key, or nil if the
// record has never been keyed or was rekeyed since.
func (r *Record) SessionKey() []byte {
	return r.sessionKey
}

// SetSessionKey installs the negotiated symmetric key.
func (r *Record) SetSessionKey(key []byte) {
	r.sessionKey = key
}

// EncryptedAnswer returns the cached token ciphertext from the last
// completed handshake, or nil.
func (r *Record) EncryptedAnswer() []byte {
	return r.encryptedAnswer
}

// SetEncryptedAnswer caches the token ciphertext so repeated get_token
// calls against an already-keyed record return identical material.
func (r *Record) SetEncryptedAnswer(answer []byte) {
	r.encryptedAnswer = answer
}

// Errors returns the record's per-request error accumulator.
func (r *Record) Errors() *errset.Accumulator {
	return &r.errors
}

// State reports the record's current position in the handshake state
// machine, derived from which fields are populated.
func (r *Record) State() State {
	switch {
	case r.sessionKey != nil:
		return StateKeyed
	case r.serverNonce != nil:
		return StateNonceIssued
	default:
		return StateNew
	}
}

// IsKeyed reports whether command dispatch is currently permitted.
func (r *Record) IsKeyed() bool {
	return r.sessionKey != nil
}

// Connect ensures server_nonce is set, generating 48 CSPRNG bytes on
// the first call and returning the existing nonce unchanged on every
// subsequent call (spec §4.4, NEW -> NONCE_ISSUED, idempotent).
func (r *Record) Connect() (serverNonce []byte, sessionID int64, err error) {
	if r.serverNonce == nil {
		nonce := make([]byte, ServerNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, 0, fmt.Errorf("session: generate server nonce: %w", err)
		}
		r.serverNonce = nonce
	}
	return r.serverNonce, r.sessionID, nil
}

// ChangeKey clears the negotiated session key and cached answer,
// forcing the record back to NONCE_ISSUED so the next command fails
// until a fresh get_token completes (spec's changeKeyFor).
func (r *Record) ChangeKey() {
	r.sessionKey = nil
	r.encryptedAnswer = nil
}

// Answer merges result with the record's accumulated errors under key
// "errors", matching C2's answer(result) contract: if result is nil,
// returns {errors: [...]} or {} when nothing was accumulated either.
func (r *Record) Answer(result wire.Map) wire.Map {
	return errset.Answer(result, &r.errors)
}

// BeginRequest clears the accumulator. Each handler (handshake Connect
// and GetToken, command Run) calls it first, while rec.Mu is held.
func (r *Record) BeginRequest() {
	r.errors.Reset()
}
