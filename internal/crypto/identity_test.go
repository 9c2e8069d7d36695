package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecover(t *testing.T) {
	id, err := NewIdentity(testKeyHex)
	require.NoError(t, err)

	msg := []byte("submit:42")
	sig, err := id.SignMessage(msg)
	require.NoError(t, err)

	recovered, err := RecoverSigner(msg, sig)
	require.NoError(t, err)
	require.Equal(t, id.Address(), recovered)
	require.True(t, VerifySigner(msg, sig, id.Address()))
}

func TestRecoverRejectsTamperedMessage(t *testing.T) {
	id, err := NewIdentity("0x" + testKeyHex)
	require.NoError(t, err)

	sig, err := id.SignMessage([]byte("submit:42"))
	require.NoError(t, err)

	recovered, err := RecoverSigner([]byte("submit:43"), sig)
	require.NoError(t, err)
	require.NotEqual(t, id.Address(), recovered)
	require.False(t, VerifySigner([]byte("submit:43"), sig, id.Address()))
}

func TestRecoverRejectsMalformedSignature(t *testing.T) {
	_, err := RecoverSigner([]byte("msg"), "0xdeadbeef")
	require.Error(t, err)

	_, err = RecoverSigner([]byte("msg"), "not-hex")
	require.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	decrypted, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	require.Equal(t, testKeyHex, decrypted)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
}

func TestCallbackAuth(t *testing.T) {
	auth := NewCallbackAuth("shared-secret")

	payload := []byte{0x00, 0x07, 0xc8, 0x30}
	sig := auth.Sign("req-1", payload)
	require.True(t, auth.Verify("req-1", payload, sig))

	// Bound to the request ID.
	require.False(t, auth.Verify("req-2", payload, sig))
	// And to the payload.
	require.False(t, auth.Verify("req-1", []byte{0x01}, sig))
}

func TestCallbackAuthDisabledWithoutSecret(t *testing.T) {
	auth := NewCallbackAuth("")
	sig := auth.Sign("req-1", []byte("x"))
	require.False(t, auth.Verify("req-1", []byte("x"), sig))
}
