package errset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/universa-net/ledgernode/wire"
)

func TestRecordError(t *testing.T) {
	r := NewBadValue("server_nonce", "nonce mismatch")
	assert.Equal(t, "BAD_VALUE/server_nonce: nonce mismatch", r.Error())
}

func TestRecordToWire(t *testing.T) {
	r := NewFailure("body", "Body too large")
	m := r.ToWire()
	assert.Equal(t, "FAILURE", m["code"])
	assert.Equal(t, "body", m["object"])
	assert.Equal(t, "Body too large", m["message"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		rec  Record
		code Code
	}{
		{NewFailure("x", "y"), Failure},
		{NewBadClientKey("x", "y"), BadClientKey},
		{NewBadValue("x", "y"), BadValue},
		{NewUnknownCommand("x", "y"), UnknownCommand},
		{NewCommandFailed("x", "y"), CommandFailed},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, c.rec.Code)
	}
}

func TestAccumulatorResetAndEmpty(t *testing.T) {
	var acc Accumulator
	assert.True(t, acc.Empty())

	acc.Add(NewBadValue("signed_data", "invalid signature"))
	require.False(t, acc.Empty())
	require.Len(t, acc.Records(), 1)

	acc.Reset()
	assert.True(t, acc.Empty())
	assert.Nil(t, acc.Records())
}

func TestAnswerMergesResultAndErrors(t *testing.T) {
	t.Run("NoErrors", func(t *testing.T) {
		var acc Accumulator
		out := Answer(nil, &acc)
		assert.Empty(t, out)
	})

	t.Run("ResultOnly", func(t *testing.T) {
		var acc Accumulator
		out := Answer(map[string]interface{}{"ping": "pong"}, &acc)
		assert.Equal(t, "pong", out["ping"])
		_, hasErrors := out["errors"]
		assert.False(t, hasErrors)
	})

	t.Run("ResultWithAccumulatedErrors", func(t *testing.T) {
		var acc Accumulator
		acc.Add(NewUnknownCommand("command", "no such command"))
		out := Answer(map[string]interface{}{"sping": "spong"}, &acc)
		assert.Equal(t, "spong", out["sping"])

		errs, ok := out["errors"].([]wire.Map)
		require.True(t, ok)
		require.Len(t, errs, 1)
		assert.Equal(t, "UNKNOWN_COMMAND", errs[0]["code"])
	})

	t.Run("NilResultWithErrors", func(t *testing.T) {
		var acc Accumulator
		acc.Add(NewBadValue("server_nonce", "mismatch"))
		out := Answer(nil, &acc)
		require.Contains(t, out, "errors")
	})
}

func TestWithTraceDoesNotAffectWireShape(t *testing.T) {
	rec := NewFailure("body", "Body too large").WithTrace("trace-123")
	assert.Equal(t, "trace-123", rec.TraceID)

	wireForm := rec.ToWire()
	assert.NotContains(t, wireForm, "trace_id")
	assert.Len(t, wireForm, 3)
}
