// Package command implements the Command Envelope (C5): decrypting an
// authenticated request under a session's symmetric key, dispatching
// the inner command, and sealing the reply.
package command

import (
	"fmt"
	"time"

	"github.com/universa-net/ledgernode/errset"
	"github.com/universa-net/ledgernode/internal/metrics"
	"github.com/universa-net/ledgernode/session"
	"github.com/universa-net/ledgernode/wire"
)

// LocalNode is the external collaborator real (non-built-in) commands
// are delegated to. Name and params are the inner command map's
// "command" field and the map itself.
type LocalNode interface {
	Command(name string, params wire.Map) (wire.Map, error)
}

// Dispatcher runs the command envelope's decrypt/dispatch/encrypt
// pipeline. LocalNode may be nil, in which case every command other
// than the built-ins reports UNKNOWN_COMMAND.
type Dispatcher struct {
	LocalNode LocalNode
}

// New constructs a Dispatcher delegating unrecognised commands to
// node (nil is permitted).
func New(node LocalNode) *Dispatcher {
	return &Dispatcher{LocalNode: node}
}

// Run executes the full C5 contract against rec, which the caller
// must already hold locked and have resolved by session id. request
// is the unpacked {session_id, params} wire map; only params is used
// here, session_id having already served its purpose in the lookup.
func (d *Dispatcher) Run(rec *session.Record, request wire.Map) wire.Map {
	rec.BeginRequest()

	sessionKey := rec.SessionKey()
	if sessionKey == nil {
		// Never keyed, or cleared by changeKeyFor: there is no shared
		// secret left to encrypt a reply with, so this is reported
		// through the same accumulated-errors channel as any other
		// session-level failure rather than as a {result: ciphertext}
		// this server cannot actually produce.
		rec.Errors().Add(errset.NewCommandFailed("session_key", "session is not keyed"))
		return rec.Answer(nil)
	}

	paramsCiphertext, err := request.GetBytes("params")
	if err != nil {
		rec.Errors().Add(errset.NewFailure("params", "missing or wrong type"))
		return rec.Answer(nil)
	}

	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(paramsCiphertext)))
	decryptStart := time.Now()
	plaintext, err := session.OpenWithKey(sessionKey, paramsCiphertext)
	metrics.SessionDuration.WithLabelValues("decrypt").Observe(time.Since(decryptStart).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
		rec.Errors().Add(errset.NewCommandFailed("params", "decryption failed"))
		return rec.Answer(nil)
	}
	metrics.CryptoOperations.WithLabelValues("decrypt", "chacha20").Inc()

	inner, err := wire.Unpack(plaintext)
	if err != nil {
		rec.Errors().Add(errset.NewCommandFailed("params", "unparsable command payload"))
		return rec.Answer(nil)
	}

	name, err := inner.GetString("command")
	if err != nil {
		rec.Errors().Add(errset.NewCommandFailed("command", "missing or wrong type"))
		return rec.Answer(nil)
	}

	var payload wire.Map
	if result, cmdErr := d.dispatch(name, inner); cmdErr != nil {
		payload = wire.Map{"error": cmdErr.ToWire()}
	} else {
		payload = wire.Map{"result": result}
	}

	packed, err := wire.Pack(payload)
	if err != nil {
		rec.Errors().Add(errset.NewFailure("command", "failed to pack reply"))
		return rec.Answer(nil)
	}

	encryptStart := time.Now()
	ciphertext, err := session.SealWithKey(sessionKey, packed)
	metrics.SessionDuration.WithLabelValues("encrypt").Observe(time.Since(encryptStart).Seconds())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
		rec.Errors().Add(errset.NewFailure("command", "failed to seal reply"))
		return rec.Answer(nil)
	}
	metrics.CryptoOperations.WithLabelValues("encrypt", "chacha20").Inc()
	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(ciphertext)))

	return rec.Answer(wire.Map{"result": ciphertext})
}

// dispatch runs the built-in command table, falling through to
// LocalNode for anything it doesn't recognise (spec §4.5 step 3).
func (d *Dispatcher) dispatch(name string, params wire.Map) (wire.Map, *errset.Record) {
	switch name {
	case "hello":
		return wire.Map{"status": "OK", "message": "welcome to the Universa"}, nil
	case "sping":
		return wire.Map{"sping": "spong"}, nil
	case "test_error":
		rec := errset.NewCommandFailed("test_error", "synthetic error for test harnesses")
		return nil, &rec
	default:
		if d.LocalNode != nil {
			result, err := d.LocalNode.Command(name, params)
			if err != nil {
				rec := errset.NewCommandFailed(name, err.Error())
				return nil, &rec
			}
			return result, nil
		}
		rec := errset.NewUnknownCommand("command", fmt.Sprintf("unknown command %q", name))
		return nil, &rec
	}
}
