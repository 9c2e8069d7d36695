package confidential

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var submitter = common.HexToAddress("0x00000000000000000000000000000000000000d4")

func TestFromCiphertextVerifiesBinding(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	ciphertext := make([]byte, 4)
	binary.BigEndian.PutUint32(ciphertext, 123456)

	_, err := e.FromCiphertext(ctx, ciphertext, []byte("bogus"), submitter)
	require.Error(t, err)

	// A proof bound to a different address must not verify.
	other := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	_, err = e.FromCiphertext(ctx, ciphertext, Bind(ciphertext, other), submitter)
	require.Error(t, err)

	v, err := e.FromCiphertext(ctx, ciphertext, Bind(ciphertext, submitter), submitter)
	require.NoError(t, err)
	require.NotEmpty(t, v.Handle())
}

func TestAddAndDecryptRoundTrip(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	a, err := e.EncryptAndBind(ctx, 500000, submitter)
	require.NoError(t, err)
	b, err := e.EncryptAndBind(ctx, 520000, submitter)
	require.NoError(t, err)

	sum, err := e.Add(ctx, a, b)
	require.NoError(t, err)
	require.NotEqual(t, a.Handle(), sum.Handle())

	require.NoError(t, e.GrantAccess(ctx, sum, submitter))

	id, err := e.RequestDecryption(ctx, sum)
	require.NoError(t, err)

	req := <-e.Requests()
	require.Equal(t, id, req.ID)
	require.Len(t, req.Cleartext, 4)
	require.EqualValues(t, 1020000, binary.BigEndian.Uint32(req.Cleartext))
}

func TestRequestDecryptionRejectsOverflowingSum(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	a, err := e.EncryptAndBind(ctx, math.MaxUint32, submitter)
	require.NoError(t, err)
	b, err := e.EncryptAndBind(ctx, 1, submitter)
	require.NoError(t, err)

	sum, err := e.Add(ctx, a, b)
	require.NoError(t, err)

	// The running sum no longer fits the 4-byte payload; decrypting it
	// would silently wrap, so the request must fail instead.
	_, err = e.RequestDecryption(ctx, sum)
	require.ErrorContains(t, err, "payload range")
	select {
	case req := <-e.Requests():
		t.Fatalf("unexpected queued request %s", req.ID)
	default:
	}
}

func TestUnknownHandleRejected(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	known, err := e.EncryptAndBind(ctx, 7, submitter)
	require.NoError(t, err)

	stranger := &value{handle: "not-registered"}
	_, err = e.Add(ctx, known, stranger)
	require.Error(t, err)
	require.Error(t, e.GrantAccess(ctx, stranger, submitter))
	_, err = e.RequestDecryption(ctx, stranger)
	require.Error(t, err)
}
