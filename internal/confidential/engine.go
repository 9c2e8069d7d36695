// Package confidential provides a plaintext-backed implementation of the
// confidential-arithmetic capability. Values are held in process memory
// behind opaque handles so the ledger code exercises the exact same call
// surface as a real homomorphic backend; nothing outside this package can
// reach a plaintext. Intended for local mode and tests.
package confidential

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/veilcast/veilcast/internal/domain"
)

// requestBuffer bounds the number of undelivered decryption requests.
const requestBuffer = 64

// value is the opaque handle the ledger sees.
type value struct {
	handle string
}

func (v *value) Handle() string { return v.handle }

// Request is a pending decryption: the identifier returned to the requester
// and the cleartext the oracle will eventually deliver. The cleartext is a
// 4-byte big-endian integer, matching the single-value payload layout.
type Request struct {
	ID        string
	Cleartext []byte
}

// Engine implements domain.ConfidentialArithmetic over plaintext integers.
type Engine struct {
	mu        sync.Mutex
	plaintext map[string]uint64                  // handle -> value
	grants    map[string]map[common.Address]bool // handle -> principals
	requests  chan Request
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		plaintext: make(map[string]uint64),
		grants:    make(map[string]map[common.Address]bool),
		requests:  make(chan Request, requestBuffer),
	}
}

// Requests exposes the stream of pending decryptions. The local oracle loop
// consumes it; tests may read it directly to drive callbacks by hand.
func (e *Engine) Requests() <-chan Request {
	return e.requests
}

// EncryptAndBind stores the raw value under a fresh handle bound to the
// submitter, who receives an initial access grant.
func (e *Engine) EncryptAndBind(_ context.Context, v uint32, submitter common.Address) (domain.ConfidentialValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(uint64(v), submitter), nil
}

// FromCiphertext accepts a 4-byte big-endian ciphertext together with a
// binding proof of keccak256(ciphertext || submitter). The proof check stands
// in for the zero-knowledge binding a real backend would verify.
func (e *Engine) FromCiphertext(_ context.Context, ciphertext, proof []byte, submitter common.Address) (domain.ConfidentialValue, error) {
	if len(ciphertext) != 4 {
		return nil, fmt.Errorf("confidential: ciphertext must be 4 bytes, got %d", len(ciphertext))
	}
	expected := crypto.Keccak256(ciphertext, submitter.Bytes())
	if !bytes.Equal(proof, expected) {
		return nil, fmt.Errorf("confidential: binding proof does not match submitter %s", submitter.Hex())
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(uint64(binary.BigEndian.Uint32(ciphertext)), submitter), nil
}

// Add combines two handles into a fresh one holding their sum. The result
// carries no grants; callers re-grant after every mutation.
func (e *Engine) Add(_ context.Context, a, b domain.ConfidentialValue) (domain.ConfidentialValue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pa, ok := e.plaintext[a.Handle()]
	if !ok {
		return nil, fmt.Errorf("confidential: unknown handle %s", a.Handle())
	}
	pb, ok := e.plaintext[b.Handle()]
	if !ok {
		return nil, fmt.Errorf("confidential: unknown handle %s", b.Handle())
	}

	h := uuid.NewString()
	e.plaintext[h] = pa + pb
	e.grants[h] = make(map[common.Address]bool)
	return &value{handle: h}, nil
}

// GrantAccess allows principal to request decryption of v.
func (e *Engine) GrantAccess(_ context.Context, v domain.ConfidentialValue, principal common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.grants[v.Handle()]
	if !ok {
		return fmt.Errorf("confidential: unknown handle %s", v.Handle())
	}
	g[principal] = true
	return nil
}

// RequestDecryption queues v for the oracle and returns the request id.
func (e *Engine) RequestDecryption(_ context.Context, v domain.ConfidentialValue) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.plaintext[v.Handle()]
	if !ok {
		return "", fmt.Errorf("confidential: unknown handle %s", v.Handle())
	}
	if p > math.MaxUint32 {
		return "", fmt.Errorf("confidential: value %d exceeds the 4-byte payload range", p)
	}

	cleartext := make([]byte, 4)
	binary.BigEndian.PutUint32(cleartext, uint32(p))

	id := uuid.NewString()
	select {
	case e.requests <- Request{ID: id, Cleartext: cleartext}:
	default:
		return "", fmt.Errorf("confidential: request queue full")
	}
	return id, nil
}

// Bind computes the binding proof for a ciphertext and submitter. Exposed so
// local-mode clients and tests can produce valid FromCiphertext inputs.
func Bind(ciphertext []byte, submitter common.Address) []byte {
	return crypto.Keccak256(ciphertext, submitter.Bytes())
}

// store must be called with e.mu held.
func (e *Engine) store(v uint64, submitter common.Address) domain.ConfidentialValue {
	h := uuid.NewString()
	e.plaintext[h] = v
	e.grants[h] = map[common.Address]bool{submitter: true}
	return &value{handle: h}
}
