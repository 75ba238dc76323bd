package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when no wrapped key file exists yet.
var ErrKeyNotFound = errors.New("database key not found")

// keyFile is the on-disk envelope stored next to the database.
type keyFile struct {
	KEKVersion   int    `json:"kek_version"`
	EncryptedDEK []byte `json:"encrypted_dek"`
	CreatedAt    int64  `json:"created_at"`
	RotatedAt    int64  `json:"rotated_at,omitempty"`
}

// KeyManager handles envelope encryption for the database key.
// The wrapped DEK lives in a small JSON file; the master key never touches disk.
type KeyManager struct {
	masterKey []byte
	scope     string
	path      string
	now       func() time.Time

	mu sync.Mutex
}

// NewKeyManager returns a KeyManager that keeps the wrapped DEK at keyPath.
// scope separates KEKs of different databases derived from one master key.
func NewKeyManager(masterKey []byte, scope, keyPath string) *KeyManager {
	return &KeyManager{
		masterKey: masterKey,
		scope:     scope,
		path:      keyPath,
		now:       time.Now,
	}
}

// KeyPathFor returns the conventional key file path for a database file.
func KeyPathFor(dbPath string) string {
	return dbPath + ".key"
}

// GetOrCreateDEK returns the database key, creating and wrapping a new one on
// first use.
func (km *KeyManager) GetOrCreateDEK() ([]byte, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	dek, err := km.load()
	if err == nil {
		return dek, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	dek, err = GenerateDEK()
	if err != nil {
		return nil, err
	}
	kekVersion := 1
	encrypted, err := EncryptDEK(DeriveKEK(km.masterKey, km.scope, kekVersion), dek)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK: %w", err)
	}
	kf := keyFile{
		KEKVersion:   kekVersion,
		EncryptedDEK: encrypted,
		CreatedAt:    km.now().Unix(),
	}
	if err := km.store(kf); err != nil {
		return nil, err
	}
	return dek, nil
}

// GetDEK returns the existing database key or ErrKeyNotFound.
func (km *KeyManager) GetDEK() ([]byte, error) {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.load()
}

// RotateKEK rewraps the DEK under the next KEK version. The DEK and therefore
// the database file are unchanged.
func (km *KeyManager) RotateKEK() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	kf, err := km.read()
	if err != nil {
		return err
	}
	dek, err := DecryptDEK(DeriveKEK(km.masterKey, km.scope, kf.KEKVersion), kf.EncryptedDEK)
	if err != nil {
		return fmt.Errorf("failed to decrypt current DEK: %w", err)
	}

	next := kf.KEKVersion + 1
	encrypted, err := EncryptDEK(DeriveKEK(km.masterKey, km.scope, next), dek)
	if err != nil {
		return fmt.Errorf("failed to encrypt DEK with new KEK: %w", err)
	}
	kf.KEKVersion = next
	kf.EncryptedDEK = encrypted
	kf.RotatedAt = km.now().Unix()
	return km.store(kf)
}

// KEKVersion reports the version of the KEK currently wrapping the DEK.
func (km *KeyManager) KEKVersion() (int, error) {
	km.mu.Lock()
	defer km.mu.Unlock()
	kf, err := km.read()
	if err != nil {
		return 0, err
	}
	return kf.KEKVersion, nil
}

func (km *KeyManager) load() ([]byte, error) {
	kf, err := km.read()
	if err != nil {
		return nil, err
	}
	dek, err := DecryptDEK(DeriveKEK(km.masterKey, km.scope, kf.KEKVersion), kf.EncryptedDEK)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK (wrong MASTER_KEY?): %w", err)
	}
	return dek, nil
}

func (km *KeyManager) read() (keyFile, error) {
	raw, err := os.ReadFile(km.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return keyFile{}, ErrKeyNotFound
		}
		return keyFile{}, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return keyFile{}, fmt.Errorf("failed to parse key file: %w", err)
	}
	if kf.KEKVersion < 1 {
		return keyFile{}, fmt.Errorf("key file has invalid kek_version %d", kf.KEKVersion)
	}
	return kf, nil
}

func (km *KeyManager) store(kf keyFile) error {
	raw, err := json.Marshal(kf)
	if err != nil {
		return fmt.Errorf("failed to encode key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(km.path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	tmp := km.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp, km.path); err != nil {
		return fmt.Errorf("failed to replace key file: %w", err)
	}
	return nil
}
