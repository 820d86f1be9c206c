// Package crypto provides at-rest encryption for the credential store's
// database fallback path (used when the OS keyring is unavailable).
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const keyFileName = ".credential_key"

// Encryptor seals/opens small secrets (passwords, OAuth tokens) with a
// per-install symmetric key generated on first use and stored, owner-only,
// alongside the database.
type Encryptor struct {
	key [32]byte
}

// NewEncryptor loads the install's key from dataDir, generating one if
// this is the first run.
func NewEncryptor(dataDir string) (*Encryptor, error) {
	path := filepath.Join(dataDir, keyFileName)

	key, err := loadKey(path)
	if err == nil {
		return &Encryptor{key: key}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read credential key: %w", err)
	}

	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key[:])), 0600); err != nil {
		return nil, fmt.Errorf("write credential key: %w", err)
	}
	return &Encryptor{key: key}, nil
}

func loadKey(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return key, err
	}
	decoded, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil || len(decoded) != 32 {
		return key, fmt.Errorf("malformed credential key file")
	}
	copy(key[:], decoded)
	return key, nil
}

// Encrypt seals plaintext and returns a base64-encoded nonce||ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &e.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < 24 {
		return "", fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])

	opened, ok := secretbox.Open(nil, data[24:], &nonce, &e.key)
	if !ok {
		return "", fmt.Errorf("decryption failed: invalid key or corrupted data")
	}
	return string(opened), nil
}
