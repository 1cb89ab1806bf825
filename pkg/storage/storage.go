// Package storage persists enrolled identities and attendance rows on disk.
// Identity files are encrypted at rest using NaCl secretbox.
package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrCodeEU/facetrack/pkg/logging"
	"github.com/MrCodeEU/facetrack/pkg/roster"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32

	extPlain     = ".json"
	extEncrypted = ".enc"
)

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStore implements roster.Store with one file per identity.
type FileStore struct {
	dir               string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStore creates the identities directory under dataDir.
func NewFileStore(dataDir string, encryptionEnabled bool) (*FileStore, error) {
	fs := &FileStore{
		dir:               filepath.Join(dataDir, "identities"),
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(fs.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create identities directory: %w", err)
	}

	return fs, nil
}

// Dir returns the directory holding identity files.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// deriveKey derives an encryption key from machine-specific information,
// tying the encrypted roster to this machine and user.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("facetrack-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])
	return key, nil
}

func (fs *FileStore) path(name, ext string) string {
	return filepath.Join(fs.dir, url.PathEscape(name)+ext)
}

func (fs *FileStore) ext() string {
	if fs.encryptionEnabled {
		return extEncrypted
	}
	return extPlain
}

// Save writes the identity, replacing any previous file for the same name.
func (fs *FileStore) Save(_ context.Context, id roster.Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt identity: %w", err)
		}
	}

	path := fs.path(id.Name, fs.ext())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write identity: %w", err)
	}

	// Drop a copy written under the other encryption setting.
	other := extPlain
	if fs.ext() == extPlain {
		other = extEncrypted
	}
	if err := os.Remove(fs.path(id.Name, other)); err != nil && !os.IsNotExist(err) {
		logging.Warnf("Failed to remove stale identity file for %s: %v", id.Name, err)
	}

	logging.Debugf("Saved identity: %s", id.Name)
	return nil
}

// Delete removes the identity's files. Deleting an unknown name succeeds.
func (fs *FileStore) Delete(_ context.Context, name string) error {
	removed := false
	for _, ext := range []string{extPlain, extEncrypted} {
		err := os.Remove(fs.path(name, ext))
		switch {
		case err == nil:
			removed = true
		case !os.IsNotExist(err):
			return fmt.Errorf("failed to delete identity: %w", err)
		}
	}

	if removed {
		logging.Infof("Deleted identity data for: %s", name)
	}
	return nil
}

// Load reads every stored identity.
func (fs *FileStore) Load(_ context.Context) ([]roster.Identity, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}

	var ids []roster.Identity
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != extPlain && ext != extEncrypted {
			continue
		}

		id, err := fs.readFile(filepath.Join(fs.dir, entry.Name()), ext == extEncrypted)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (fs *FileStore) readFile(path string, encrypted bool) (roster.Identity, error) {
	var id roster.Identity

	data, err := os.ReadFile(path)
	if err != nil {
		return id, fmt.Errorf("failed to read identity: %w", err)
	}

	if encrypted {
		if !fs.encryptionEnabled {
			key, err := deriveKey()
			if err != nil {
				return id, err
			}
			fs.encryptionKey = key
		}
		data, err = fs.decrypt(data)
		if err != nil {
			return id, fmt.Errorf("failed to decrypt identity: %w", err)
		}
	}

	if err := json.Unmarshal(data, &id); err != nil {
		return id, fmt.Errorf("failed to unmarshal identity: %w", err)
	}
	return id, nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
