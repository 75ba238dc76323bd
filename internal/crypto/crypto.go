// Package crypto provides envelope encryption for the notes database key.
// It implements a two-tier key hierarchy:
// - KEK (Key Encryption Key): derived from MASTER_KEY using HKDF-SHA256
// - DEK (Data Encryption Key): random 32-byte SQLCipher key, stored wrapped by the KEK with AES-256-GCM
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DEKSize is the size of a Data Encryption Key in bytes (256 bits)
	DEKSize = 32

	// KEKSize is the size of a Key Encryption Key in bytes (256 bits)
	KEKSize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	tagSize = 16
)

// DeriveKEK derives a Key Encryption Key from the master key with HKDF-SHA256.
// info = "notes:" + scope + ":v" + version keeps each database and key version
// in its own domain.
func DeriveKEK(masterKey []byte, scope string, version int) []byte {
	info := fmt.Sprintf("notes:%s:v%d", scope, version)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	kek := make([]byte, KEKSize)
	if _, err := io.ReadFull(r, kek); err != nil {
		// HKDF-SHA256 can emit 255*32 bytes; 32 never fails.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return kek
}

// GenerateDEK returns a new random Data Encryption Key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}
	return dek, nil
}

// EncryptDEK wraps dek with kek using AES-256-GCM.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func EncryptDEK(kek, dek []byte) ([]byte, error) {
	if len(kek) != KEKSize {
		return nil, fmt.Errorf("KEK must be %d bytes, got %d", KEKSize, len(kek))
	}
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("DEK must be %d bytes, got %d", DEKSize, len(dek))
	}

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, dek, nil), nil
}

// DecryptDEK unwraps a DEK produced by EncryptDEK.
func DecryptDEK(kek, encryptedDEK []byte) ([]byte, error) {
	if len(kek) != KEKSize {
		return nil, fmt.Errorf("KEK must be %d bytes, got %d", KEKSize, len(kek))
	}
	if len(encryptedDEK) < NonceSize+tagSize {
		return nil, fmt.Errorf("encrypted DEK too short: got %d bytes, need at least %d", len(encryptedDEK), NonceSize+tagSize)
	}

	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	dek, err := gcm.Open(nil, encryptedDEK[:NonceSize], encryptedDEK[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK: %w", err)
	}
	return dek, nil
}

func newGCM(kek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
