package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/universa-net/ledgernode/crypto/keys"
	"github.com/universa-net/ledgernode/session"
	"github.com/universa-net/ledgernode/wire"
)

func newTestHandshake(t *testing.T) (*Handshake, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	registry := session.NewRegistry()

	_, nodePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	nodeKey, err := keys.NewEd25519KeyPair(nodePriv, "node")
	require.NoError(t, err)

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	h := New(registry, nodeKey)
	return h, clientPub, clientPriv
}

func TestConnectIdempotentPerClientKey(t *testing.T) {
	h, clientPub, _ := newTestHandshake(t)

	rec1, out1, err := h.Connect(clientPub)
	require.NoError(t, err)
	rec2, out2, err := h.Connect(clientPub)
	require.NoError(t, err)

	assert.Same(t, rec1, rec2)
	assert.Equal(t, out1["server_nonce"], out2["server_nonce"])
	assert.Equal(t, out1["session_id"], out2["session_id"])
}

func TestConnectRejectsBadClientKey(t *testing.T) {
	h, _, _ := newTestHandshake(t)
	_, _, err := h.Connect([]byte("too short"))
	assert.Error(t, err)
}

func signGetTokenRequest(t *testing.T, clientPriv ed25519.PrivateKey, serverNonce, clientNonce []byte) wire.Map {
	t.Helper()
	data, err := wire.Pack(wire.Map{
		"server_nonce": serverNonce,
		"client_nonce": clientNonce,
	})
	require.NoError(t, err)
	signature := ed25519.Sign(clientPriv, data)
	return wire.Map{"data": data, "signature": signature}
}

func TestGetTokenEchoesClientNonceAndVerifies(t *testing.T) {
	h, clientPub, clientPriv := newTestHandshake(t)
	rec, connectOut, err := h.Connect(clientPub)
	require.NoError(t, err)

	serverNonce := connectOut["server_nonce"].([]byte)
	clientNonce := []byte("client-nonce-bytes")

	rec.Mu.Lock()
	out := h.GetToken(rec, signGetTokenRequest(t, clientPriv, serverNonce, clientNonce))
	rec.Mu.Unlock()

	require.NotContains(t, out, "errors")
	data, ok := out["data"].([]byte)
	require.True(t, ok)
	signature, ok := out["signature"].([]byte)
	require.True(t, ok)

	nodePub := h.NodeKey.PublicKey().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(nodePub, data, signature))

	unpacked, err := wire.Unpack(data)
	require.NoError(t, err)
	echoed, err := unpacked.GetBytes("client_nonce")
	require.NoError(t, err)
	assert.Equal(t, clientNonce, echoed)
	assert.True(t, rec.IsKeyed())
}

func TestGetTokenWrongServerNonceIsBadValue(t *testing.T) {
	h, clientPub, clientPriv := newTestHandshake(t)
	rec, _, err := h.Connect(clientPub)
	require.NoError(t, err)

	wrongNonce := make([]byte, session.ServerNonceSize)
	rec.Mu.Lock()
	out := h.GetToken(rec, signGetTokenRequest(t, clientPriv, wrongNonce, []byte("cn")))
	rec.Mu.Unlock()

	require.Contains(t, out, "errors")
	assert.False(t, rec.IsKeyed())
}

func TestGetTokenInvalidSignatureIsBadValue(t *testing.T) {
	h, clientPub, _ := newTestHandshake(t)
	rec, connectOut, err := h.Connect(clientPub)
	require.NoError(t, err)

	serverNonce := connectOut["server_nonce"].([]byte)
	data, err := wire.Pack(wire.Map{"server_nonce": serverNonce, "client_nonce": []byte("cn")})
	require.NoError(t, err)

	rec.Mu.Lock()
	out := h.GetToken(rec, wire.Map{"data": data, "signature": []byte("not-a-real-signature-000000000000")})
	rec.Mu.Unlock()

	require.Contains(t, out, "errors")
	assert.False(t, rec.IsKeyed())
}

func TestRepeatedGetTokenReturnsIdenticalEncryptedToken(t *testing.T) {
	h, clientPub, clientPriv := newTestHandshake(t)
	rec, connectOut, err := h.Connect(clientPub)
	require.NoError(t, err)
	serverNonce := connectOut["server_nonce"].([]byte)

	rec.Mu.Lock()
	h.GetToken(rec, signGetTokenRequest(t, clientPriv, serverNonce, []byte("cn1")))
	first := rec.EncryptedAnswer()
	h.GetToken(rec, signGetTokenRequest(t, clientPriv, serverNonce, []byte("cn2")))
	second := rec.EncryptedAnswer()
	rec.Mu.Unlock()

	assert.Equal(t, first, second)
}

func TestChangeKeyForcesRekeyBeforeNextCommand(t *testing.T) {
	h, clientPub, clientPriv := newTestHandshake(t)
	rec, connectOut, err := h.Connect(clientPub)
	require.NoError(t, err)
	serverNonce := connectOut["server_nonce"].([]byte)

	rec.Mu.Lock()
	h.GetToken(rec, signGetTokenRequest(t, clientPriv, serverNonce, []byte("cn")))
	rec.Mu.Unlock()
	require.True(t, rec.IsKeyed())

	h.ChangeKeyFor(clientPub)
	assert.False(t, rec.IsKeyed())
}
