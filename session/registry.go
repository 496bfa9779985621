package session

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/universa-net/ledgernode/internal/metrics"
)

// ErrBadSessionNumber is returned by GetByID when no record is
// indexed under the given id (spec's "bad-session-number" signal).
var ErrBadSessionNumber = fmt.Errorf("session: bad session number")

// Registry is the dual concurrent index over Session Records: one map
// keyed by client public key, one by numeric session id, both
// pointing at the same record instances (spec §4.3).
type Registry struct {
	mu       sync.Mutex
	byPubKey map[string]*Record
	byID     map[int64]*Record

	idMu   sync.Mutex
	nextID int64
}

// NewRegistry constructs an empty registry. The session-id sequence is
// seeded at or above the process start epoch-seconds, per invariant 2
// of spec §3 ("minimising accidental collisions after restart").
func NewRegistry() *Registry {
	return &Registry{
		byPubKey: make(map[string]*Record),
		byID:     make(map[int64]*Record),
		nextID:   time.Now().Unix(),
	}
}

func keyOf(publicKey []byte) string {
	return hex.EncodeToString(publicKey)
}

// nextSessionID returns the next 63-bit positive session id: the
// running sequence plus a small random offset, so ids are monotonic
// but not trivially guessable consecutive integers. It is not a
// security token (spec design note), only a handle.
func (reg *Registry) nextSessionID() int64 {
	reg.idMu.Lock()
	defer reg.idMu.Unlock()
	reg.nextID += 1 + rand.Int63n(1<<20)
	return reg.nextID
}

// GetOrCreate returns the existing record for publicKey, or creates
// and indexes a new one. Creation is serialized on the registry mutex
// to guarantee invariant 1 (at most one record per public key).
func (reg *Registry) GetOrCreate(publicKey []byte) *Record {
	k := keyOf(publicKey)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if rec, ok := reg.byPubKey[k]; ok {
		return rec
	}

	rec := NewRecord(publicKey, reg.nextSessionID())
	reg.byPubKey[k] = rec
	reg.byID[rec.SessionID()] = rec
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	return rec
}

// GetByID performs a lock-free-from-the-caller's-perspective read
// lookup by session id; Go's map type still requires the registry
// mutex for safety against concurrent GetOrCreate writes, but no
// record-level work happens under it, so contention is minimal.
func (reg *Registry) GetByID(id int64) (*Record, error) {
	reg.mu.Lock()
	rec, ok := reg.byID[id]
	reg.mu.Unlock()
	if !ok {
		return nil, ErrBadSessionNumber
	}
	return rec, nil
}

// GetByPublicKey returns the record for publicKey, if one exists,
// without creating it.
func (reg *Registry) GetByPublicKey(publicKey []byte) (*Record, bool) {
	reg.mu.Lock()
	rec, ok := reg.byPubKey[keyOf(publicKey)]
	reg.mu.Unlock()
	return rec, ok
}

// ChangeKeyFor clears the session key on the record matching
// publicKey, if one exists, forcing the next command to fail until
// the client re-runs the handshake (spec's changeKeyFor).
func (reg *Registry) ChangeKeyFor(publicKey []byte) {
	reg.mu.Lock()
	rec, ok := reg.byPubKey[keyOf(publicKey)]
	reg.mu.Unlock()
	if !ok {
		return
	}
	rec.Mu.Lock()
	wasKeyed := rec.IsKeyed()
	rec.ChangeKey()
	rec.Mu.Unlock()
	if wasKeyed {
		metrics.SessionsClosed.Inc()
	}
}

// Size returns the number of live records, used by tests asserting
// registry de-duplication under concurrent connect calls.
func (reg *Registry) Size() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byPubKey)
}
