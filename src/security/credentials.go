// Package security encrypts exchange API credentials at rest, filling
// in the EncryptString/DecryptString pair the teacher's cmd/keys CLI
// and executors/start_loop.go call but never implement. Grounded on the
// same key-management shape (one symmetric key loaded from config) but
// using nacl/secretbox rather than a hand-rolled cipher construction.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// loadKey decodes cfg.ExchangeCRKey into the 32-byte secretbox key.
func loadKey(cfg Config) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(cfg.ExchangeCRKey)
	if err != nil {
		return nil, fmt.Errorf("decoding exchange credentials key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("exchange credentials key must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// EncryptString seals plaintext with a fresh random nonce under the
// configured key, returning a base64-encoded nonce||ciphertext blob
// suitable for storage in a credentials column.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey(GetConfig())
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey(GetConfig())
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding credentials blob: %w", err)
	}
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("credentials blob shorter than nonce")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("failed to decrypt credentials blob")
	}
	return string(plain), nil
}
