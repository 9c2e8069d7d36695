package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Identity wraps the operator's secp256k1 key pair. Local mode uses it to
// sign requests as the event admin; the address is also the default admin
// for events created from the command line.
type Identity struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIdentity parses a hex-encoded private key (with or without 0x prefix)
// and derives the corresponding address.
func NewIdentity(privateKeyHex string) (*Identity, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	priv, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing private key: %w", err)
	}
	return &Identity{
		privateKey: priv,
		address:    ethcrypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// LoadIdentity resolves a key via LoadKey and wraps it as an Identity.
func LoadIdentity(cfg KeyConfig) (*Identity, error) {
	keyHex, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewIdentity(keyHex)
}

// Address returns the address derived from the identity's public key.
func (id *Identity) Address() common.Address {
	return id.address
}

// SignMessage signs an arbitrary message with the EIP-191 personal-sign
// scheme and returns the 65-byte signature hex-encoded with a 0x prefix.
// The recovery byte is shifted to the Ethereum convention (27/28).
func (id *Identity) SignMessage(message []byte) (string, error) {
	sig, err := ethcrypto.Sign(personalHash(message), id.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing message: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner recovers the address that produced a personal-sign signature
// over the given message. Both 0/1 and 27/28 recovery bytes are accepted.
func RecoverSigner(message []byte, signatureHex string) (common.Address, error) {
	sigHex := strings.TrimPrefix(signatureHex, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: decoding signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: expected 65-byte signature, got %d bytes", len(sig))
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recovering public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySigner reports whether the signature over message was produced by
// the expected address.
func VerifySigner(message []byte, signatureHex string, expected common.Address) bool {
	recovered, err := RecoverSigner(message, signatureHex)
	if err != nil {
		return false
	}
	return recovered == expected
}

// personalHash computes the EIP-191 personal-sign digest of a message.
func personalHash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return ethcrypto.Keccak256([]byte(prefix), message)
}
