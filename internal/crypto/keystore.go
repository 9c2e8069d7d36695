// Package crypto provides operator key management, participant identity
// verification, and HMAC authentication for the oracle callback channel.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// OWASP-recommended minimum for PBKDF2-HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32 // AES-256

	keystoreVersion = 1
)

// keystoreBlob is the on-disk envelope holding the encrypted operator key.
// All binary fields are standard base64.
type keystoreBlob struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig names the sources LoadKey tries when resolving the operator's
// private key. RawPrivateKey wins when both are set.
type KeyConfig struct {
	// Hex-encoded private key, 0x prefix optional.
	RawPrivateKey string

	// Path to a keystore file written by EncryptKey, unlocked with
	// KeyPassword.
	EncryptedKeyPath string
	KeyPassword      string
}

// gcmFor derives an AES-256 key from the password and salt and returns the
// GCM instance sealing or opening the keystore payload.
func gcmFor(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

func decodeKeyHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}

// EncryptKey seals a hex-encoded private key under a password and returns
// the keystore JSON to write to disk.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty keystore password")
	}
	keyBytes, err := decodeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(keystoreBlob{
		Version:    keystoreVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey opens a keystore blob, returning the private key hex without
// the 0x prefix.
func DecryptKey(blob []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: empty keystore password")
	}

	var stored keystoreBlob
	if err := json.Unmarshal(blob, &stored); err != nil {
		return "", fmt.Errorf("crypto: parse keystore: %w", err)
	}
	if stored.Version != keystoreVersion {
		return "", fmt.Errorf("crypto: unsupported keystore version %d", stored.Version)
	}

	fields := map[string]string{
		"salt": stored.Salt, "nonce": stored.Nonce, "ciphertext": stored.Ciphertext,
	}
	decoded := make(map[string][]byte, len(fields))
	for name, val := range fields {
		raw, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return "", fmt.Errorf("crypto: decode keystore %s: %w", name, err)
		}
		decoded[name] = raw
	}

	gcm, err := gcmFor(password, decoded["salt"])
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, decoded["nonce"], decoded["ciphertext"], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open keystore (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// LoadKey resolves the operator's private key: raw config value first, then
// the keystore file.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		raw, err := decodeKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(raw), nil
	}
	if cfg.EncryptedKeyPath != "" {
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read keystore file: %w", err)
		}
		return DecryptKey(blob, cfg.KeyPassword)
	}
	return "", errors.New("crypto: no key source configured")
}
