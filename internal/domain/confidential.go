package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ConfidentialValue is an opaque handle to an encrypted integer. The ledger
// never inspects its contents; it only combines handles through the
// arithmetic capability and requests decryption of the final sum.
type ConfidentialValue interface {
	// Handle returns a stable identifier for logging and archival. It
	// reveals nothing about the underlying plaintext.
	Handle() string
}

// ConfidentialArithmetic is the confidential-computation capability the
// ledger is built against. Production backends wrap a real homomorphic
// encryption service; tests and local mode use a plaintext-backed engine.
type ConfidentialArithmetic interface {
	// EncryptAndBind encrypts a raw value and binds it to the submitting
	// principal, so the ciphertext cannot be replayed by another caller.
	EncryptAndBind(ctx context.Context, value uint32, submitter common.Address) (ConfidentialValue, error)

	// FromCiphertext verifies an externally-produced ciphertext and its
	// binding proof against the claimed submitter, returning a usable handle.
	FromCiphertext(ctx context.Context, ciphertext, proof []byte, submitter common.Address) (ConfidentialValue, error)

	// Add returns a handle representing a+b without decrypting either side.
	Add(ctx context.Context, a, b ConfidentialValue) (ConfidentialValue, error)

	// GrantAccess allows principal to read or request decryption of v.
	// Grants do not survive mutation: adding to a sum yields a fresh handle
	// that must be re-granted.
	GrantAccess(ctx context.Context, v ConfidentialValue, principal common.Address) error

	// RequestDecryption submits v to the decryption oracle and returns the
	// request identifier. The cleartext arrives later through a callback
	// that carries the same identifier.
	RequestDecryption(ctx context.Context, v ConfidentialValue) (string, error)
}

// DecryptionCallback is the signature of the oracle's completion delivery.
// The payload encoding is capability-specific; for single-value requests the
// cleartext occupies the first 4 bytes, big-endian.
type DecryptionCallback func(ctx context.Context, requestID string, cleartext []byte) error
