package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

// callbackSaltContext namespaces the derived callback key so the same shared
// secret cannot be replayed against a different deployment.
const callbackSaltContext = "veilcast-oracle-callback-v1"

// CallbackAuth authenticates decryption callbacks delivered over HTTP. The
// oracle signs each delivery with an HMAC key derived from a shared secret;
// the callback handler verifies it before touching the ledger.
type CallbackAuth struct {
	key []byte
}

// NewCallbackAuth derives the HMAC key from the shared secret via
// PBKDF2-HMAC-SHA256. An empty secret yields a CallbackAuth that rejects
// every signature, which disables the endpoint rather than leaving it open.
func NewCallbackAuth(secret string) *CallbackAuth {
	if secret == "" {
		return &CallbackAuth{}
	}
	key := pbkdf2.Key([]byte(secret), []byte(callbackSaltContext), pbkdf2Iterations, aesKeyLen, sha256.New)
	return &CallbackAuth{key: key}
}

// Sign computes the base64 HMAC-SHA256 signature over a callback delivery.
// The request ID is bound into the MAC so a signature cannot be replayed for
// a different pending finalization.
func (a *CallbackAuth) Sign(requestID string, payload []byte) string {
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(requestID))
	mac.Write([]byte{0})
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature authenticates the delivery. It always
// fails when no secret was configured.
func (a *CallbackAuth) Verify(requestID string, payload []byte, signature string) bool {
	if len(a.key) == 0 {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, a.key)
	mac.Write([]byte(requestID))
	mac.Write([]byte{0})
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}
