package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/universa-net/ledgernode/session"
	"github.com/universa-net/ledgernode/wire"
)

func keyedRecord(t *testing.T) (*session.Record, []byte) {
	t.Helper()
	rec := session.NewRecord([]byte("client-key"), 42)
	key, err := session.GenerateSessionKey()
	require.NoError(t, err)
	rec.SetSessionKey(key)
	return rec, key
}

func encryptCommand(t *testing.T, key []byte, inner wire.Map) wire.Map {
	t.Helper()
	packed, err := wire.Pack(inner)
	require.NoError(t, err)
	ciphertext, err := session.SealWithKey(key, packed)
	require.NoError(t, err)
	return wire.Map{"session_id": int64(42), "params": ciphertext}
}

func decryptResult(t *testing.T, key []byte, out wire.Map) wire.Map {
	t.Helper()
	ciphertext, ok := out["result"].([]byte)
	require.True(t, ok)
	plaintext, err := session.OpenWithKey(key, ciphertext)
	require.NoError(t, err)
	inner, err := wire.Unpack(plaintext)
	require.NoError(t, err)
	return inner
}

func TestHelloCommand(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(nil)

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "hello"}))
	inner := decryptResult(t, key, out)

	result, err := inner.GetMap("result")
	require.NoError(t, err)
	status, err := result.GetString("status")
	require.NoError(t, err)
	assert.Equal(t, "OK", status)
}

func TestSpingCommand(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(nil)

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "sping"}))
	inner := decryptResult(t, key, out)

	result, err := inner.GetMap("result")
	require.NoError(t, err)
	sping, err := result.GetString("sping")
	require.NoError(t, err)
	assert.Equal(t, "spong", sping)
}

func TestTestErrorCommand(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(nil)

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "test_error"}))
	inner := decryptResult(t, key, out)

	errRec, err := inner.GetMap("error")
	require.NoError(t, err)
	code, err := errRec.GetString("code")
	require.NoError(t, err)
	assert.Equal(t, "COMMAND_FAILED", code)
}

func TestUnknownCommandWithoutLocalNode(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(nil)

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "nonexistent"}))
	inner := decryptResult(t, key, out)

	errRec, err := inner.GetMap("error")
	require.NoError(t, err)
	code, err := errRec.GetString("code")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN_COMMAND", code)
}

type fakeLocalNode struct {
	result wire.Map
	err    error
}

func (f *fakeLocalNode) Command(name string, params wire.Map) (wire.Map, error) {
	return f.result, f.err
}

func TestDelegatesUnknownCommandsToLocalNode(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(&fakeLocalNode{result: wire.Map{"balance": int64(100)}})

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "get_balance"}))
	inner := decryptResult(t, key, out)

	result, err := inner.GetMap("result")
	require.NoError(t, err)
	balance, err := result.GetLong("balance")
	require.NoError(t, err)
	assert.EqualValues(t, 100, balance)
}

func TestLocalNodeErrorBecomesCommandFailed(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(&fakeLocalNode{err: errors.New("backend unavailable")})

	out := d.Run(rec, encryptCommand(t, key, wire.Map{"command": "get_balance"}))
	inner := decryptResult(t, key, out)

	errRec, err := inner.GetMap("error")
	require.NoError(t, err)
	code, err := errRec.GetString("code")
	require.NoError(t, err)
	assert.Equal(t, "COMMAND_FAILED", code)
}

func TestCommandWithoutSessionKeyFails(t *testing.T) {
	rec := session.NewRecord([]byte("client-key"), 43)
	d := New(nil)

	out := d.Run(rec, wire.Map{"session_id": int64(43), "params": []byte("anything")})
	assert.Contains(t, out, "errors")
	_, hasResult := out["result"]
	assert.False(t, hasResult)
}

func TestUndecryptableParamsAfterRekeyFails(t *testing.T) {
	rec, key := keyedRecord(t)
	d := New(nil)

	request := encryptCommand(t, key, wire.Map{"command": "hello"})

	rec.ChangeKey()

	out := d.Run(rec, request)
	assert.Contains(t, out, "errors")
}
