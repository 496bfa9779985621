// Package errset defines the structured error records the handshake,
// command, and router layers accumulate and return to clients, and the
// per-session accumulator that collects them for a single request.
package errset

import (
	"fmt"

	"github.com/universa-net/ledgernode/wire"
)

// Code names one of the five error kinds the protocol can surface.
type Code string

const (
	Failure        Code = "FAILURE"
	BadClientKey   Code = "BAD_CLIENT_KEY"
	BadValue       Code = "BAD_VALUE"
	UnknownCommand Code = "UNKNOWN_COMMAND"
	CommandFailed  Code = "COMMAND_FAILED"
)

// Record is the wire-level {code, object, message} error shape.
// TraceID is an optional, process-internal correlation id (spec's
// per-request trace id, supplemental to spec.md): it is never
// serialized by ToWire, so it cannot change the wire contract, but
// callers that also log the record can fold it into the log line.
type Record struct {
	Code    Code   `msgpack:"code"`
	Object  string `msgpack:"object"`
	Message string `msgpack:"message"`
	TraceID string `msgpack:"-"`
}

// Error implements the error interface so a Record can be returned and
// wrapped like any other Go error at the internal plumbing boundary.
func (r Record) Error() string {
	return fmt.Sprintf("%s/%s: %s", r.Code, r.Object, r.Message)
}

// ToWire renders the record as a wire.Map for embedding in a response.
func (r Record) ToWire() wire.Map {
	return wire.Map{
		"code":    string(r.Code),
		"object":  r.Object,
		"message": r.Message,
	}
}

// New builds an error record of the given kind.
func New(code Code, object, message string) Record {
	return Record{Code: code, Object: object, Message: message}
}

// WithTrace returns a copy of r carrying traceID, for callers that log
// the record as well as returning it.
func (r Record) WithTrace(traceID string) Record {
	r.TraceID = traceID
	return r
}

// NewFailure builds a FAILURE record, used for oversize bodies, missing
// form fields, and unexpected exceptions.
func NewFailure(object, message string) Record {
	return New(Failure, object, message)
}

// NewBadClientKey builds a BAD_CLIENT_KEY record.
func NewBadClientKey(object, message string) Record {
	return New(BadClientKey, object, message)
}

// NewBadValue builds a BAD_VALUE record, used for signature and nonce
// mismatches.
func NewBadValue(object, message string) Record {
	return New(BadValue, object, message)
}

// NewUnknownCommand builds an UNKNOWN_COMMAND record, used for both
// unrecognised URIs and unrecognised inner command names.
func NewUnknownCommand(object, message string) Record {
	return New(UnknownCommand, object, message)
}

// NewCommandFailed builds a COMMAND_FAILED record, used for backend
// exceptions during authenticated command dispatch.
func NewCommandFailed(object, message string) Record {
	return New(CommandFailed, object, message)
}

// Accumulator is the per-session ordered error list (spec's "errors"
// field). It is reset at the start of every request serviced under a
// session and merged into the response by Answer.
type Accumulator struct {
	records []Record
}

// Add appends a record to the accumulator.
func (a *Accumulator) Add(r Record) {
	a.records = append(a.records, r)
}

// Reset clears the accumulator, called before each request under a
// session's critical section.
func (a *Accumulator) Reset() {
	a.records = nil
}

// Empty reports whether no errors have been accumulated.
func (a *Accumulator) Empty() bool {
	return len(a.records) == 0
}

// Records returns a copy of the accumulated records, in the order added.
func (a *Accumulator) Records() []Record {
	if len(a.records) == 0 {
		return nil
	}
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// Answer merges result (possibly nil) with any accumulated errors under
// key "errors", per C2's answer(result) contract: if result is nil,
// returns {errors: [...]} or {} when there are no errors either.
func Answer(result wire.Map, acc *Accumulator) wire.Map {
	out := wire.Map{}
	for k, v := range result {
		out[k] = v
	}
	if acc == nil || acc.Empty() {
		return out
	}
	errs := make([]wire.Map, 0, len(acc.records))
	for _, r := range acc.records {
		errs = append(errs, r.ToWire())
	}
	out["errors"] = errs
	return out
}
