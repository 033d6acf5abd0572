package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Address       string    `json:"address"` // derived account 0 address, for display without unlock
}

// Keystore reads and writes a single encrypted wallet file.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore at the given file path. The parent directory
// is created if it does not exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

// Exists reports whether the wallet file is present.
func (ks *Keystore) Exists() bool {
	_, err := os.Stat(ks.path)
	return err == nil
}

// Create encrypts the seed under the password and writes a new wallet file.
// Fails if one already exists.
func (ks *Keystore) Create(seed, password []byte, params EncryptionParams) error {
	if ks.Exists() {
		return fmt.Errorf("wallet file %q already exists", ks.path)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	key, err := DeriveKey(seed, 0, 0)
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}

	kf := keystoreFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Address:       AddressOf(key).Hex(),
	}

	data, err := json.MarshalIndent(&kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet file: %w", err)
	}
	if err := os.WriteFile(ks.path, data, 0600); err != nil {
		return fmt.Errorf("write wallet file: %w", err)
	}
	return nil
}

// Load decrypts the wallet and returns the seed bytes.
func (ks *Keystore) Load(password []byte) ([]byte, error) {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decode wallet file: %w", err)
	}

	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, nil
}

// Address returns the stored display address without unlocking, or "" when
// the file is missing or unreadable.
func (ks *Keystore) Address() string {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return ""
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return ""
	}
	return kf.Address
}
