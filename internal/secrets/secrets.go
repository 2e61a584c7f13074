package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"goldpipe/internal/common"
)

const (
	// Keyring service name
	keyringService = "goldpipe"
	// Number of iterations for PBKDF2
	pbkdf2Iterations = 100000
	// Key size for AES-256
	keySize = 32
)

// Store handles secure storage and retrieval of passwords. It prefers the
// OS keyring and falls back to AES-GCM encrypted files under the config
// directory when no keyring backend is available.
type Store struct {
	useKeyring bool
	dir        string
}

// NewStore creates a secret store rooted at the given config directory.
func NewStore(configDir string) *Store {
	return &Store{
		useKeyring: keyringAvailable(),
		dir:        filepath.Join(configDir, "credentials"),
	}
}

// Set stores a named secret.
func (s *Store) Set(name, value string) error {
	if s.useKeyring {
		if err := keyring.Set(keyringService, name, value); err != nil {
			return fmt.Errorf("failed to store in keyring: %w", err)
		}
		return nil
	}
	return s.setEncrypted(name, value)
}

// Get retrieves a named secret. A missing secret returns an error.
func (s *Store) Get(name string) (string, error) {
	if s.useKeyring {
		value, err := keyring.Get(keyringService, name)
		if err != nil {
			return "", fmt.Errorf("failed to get from keyring: %w", err)
		}
		return value, nil
	}
	return s.getEncrypted(name)
}

// Delete removes a named secret. Deleting a missing secret is not an error.
func (s *Store) Delete(name string) error {
	if s.useKeyring {
		err := keyring.Delete(keyringService, name)
		if err != nil && err != keyring.ErrNotFound {
			return err
		}
		return nil
	}
	err := os.Remove(s.secretPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func keyringAvailable() bool {
	if os.Getenv("GOLDPIPE_NO_KEYRING") == "1" {
		return false
	}
	// Probe with a throwaway entry; headless hosts often have no backend.
	probe := "goldpipe-probe"
	if err := keyring.Set(keyringService, probe, "1"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probe)
	return true
}

// Encrypted file fallback

func (s *Store) secretPath(name string) string {
	return filepath.Join(s.dir, common.SanitizeFilename(name)+".enc")
}

func (s *Store) setEncrypted(name, value string) error {
	if err := os.MkdirAll(s.dir, common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}

	gcm, err := newGCM(masterKey(), salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	sealed := gcm.Seal(nil, nonce, []byte(value), nil)
	payload := append(append(salt, nonce...), sealed...)
	encoded := base64.StdEncoding.EncodeToString(payload)

	return os.WriteFile(s.secretPath(name), []byte(encoded), common.FilePermissionSecure)
}

func (s *Store) getEncrypted(name string) (string, error) {
	encoded, err := os.ReadFile(s.secretPath(name))
	if err != nil {
		return "", fmt.Errorf("secret %q not found: %w", name, err)
	}

	payload, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return "", fmt.Errorf("corrupt secret %q: %w", name, err)
	}
	if len(payload) < 16 {
		return "", fmt.Errorf("corrupt secret %q: too short", name)
	}

	salt := payload[:16]
	gcm, err := newGCM(masterKey(), salt)
	if err != nil {
		return "", err
	}

	rest := payload[16:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("corrupt secret %q: too short", name)
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret %q: %w", name, err)
	}

	return string(plain), nil
}

func newGCM(passphrase []byte, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// masterKey derives the file-fallback passphrase from the environment or a
// stable host identity.
func masterKey() []byte {
	if key := os.Getenv("GOLDPIPE_MASTER_KEY"); key != "" {
		hash := sha256.Sum256([]byte(key))
		return hash[:]
	}
	host, _ := os.Hostname()
	hash := sha256.Sum256([]byte("goldpipe:" + host))
	return hash[:]
}
