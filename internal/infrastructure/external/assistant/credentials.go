package assistant

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREDENTIAL STORE
// The chat provider key stays on the learner's machine. It is sealed with a
// key derived from a local passphrase and never sent to the academy backend.
// ══════════════════════════════════════════════════════════════════════════════

// Sealed file layout: version(1) | salt(16) | nonce(24) | secretbox.
const (
	credentialVersion byte = 1
	saltSize               = 16
	nonceSize              = 24
	headerSize             = 1 + saltSize + nonceSize

	defaultScryptN = 1 << 15
	scryptR        = 8
	scryptP        = 1
)

var (
	// ErrCredentialCorrupt is returned when the sealed file cannot be opened
	// with the passphrase.
	ErrCredentialCorrupt = errors.New("assistant credential is corrupt or the passphrase is wrong")

	// ErrEmptyPassphrase is returned by NewCredentialStore.
	ErrEmptyPassphrase = errors.New("assistant credential passphrase is empty")
)

// CredentialStore keeps the provider API key in a sealed local file.
type CredentialStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
	scryptN    int
	rand       io.Reader
}

// NewCredentialStore creates a store backed by path.
func NewCredentialStore(path, passphrase string) (*CredentialStore, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return &CredentialStore{
		path:       path,
		passphrase: []byte(passphrase),
		scryptN:    defaultScryptN,
		rand:       rand.Reader,
	}, nil
}

// Path returns the sealed file location.
func (s *CredentialStore) Path() string {
	return s.path
}

// Save seals apiKey and replaces the file atomically.
func (s *CredentialStore) Save(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return shared.NewDomainError("assistant", "SaveKey", shared.ErrEmptyValue, "api key is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, headerSize, headerSize+len(apiKey)+secretbox.Overhead)
	out[0] = credentialVersion
	salt := out[1 : 1+saltSize]
	if _, err := io.ReadFull(s.rand, salt); err != nil {
		return fmt.Errorf("assistant: generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return fmt.Errorf("assistant: generate nonce: %w", err)
	}
	copy(out[1+saltSize:], nonce[:])

	key, err := s.deriveKey(salt)
	if err != nil {
		return err
	}
	out = secretbox.Seal(out, []byte(apiKey), &nonce, key)

	return writeFileAtomic(s.path, out)
}

// Load opens the sealed file. A missing file is reported as
// shared.ErrAssistantNoCredential.
func (s *CredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", shared.ErrAssistantNoCredential
		}
		return "", fmt.Errorf("assistant: read credential: %w", err)
	}
	if len(raw) < headerSize+secretbox.Overhead || raw[0] != credentialVersion {
		return "", ErrCredentialCorrupt
	}

	salt := raw[1 : 1+saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], raw[1+saltSize:headerSize])

	key, err := s.deriveKey(salt)
	if err != nil {
		return "", err
	}
	plain, ok := secretbox.Open(nil, raw[headerSize:], &nonce, key)
	if !ok {
		return "", ErrCredentialCorrupt
	}
	return string(plain), nil
}

// Clear removes the sealed file. Clearing an absent file is not an error.
func (s *CredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("assistant: remove credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) deriveKey(salt []byte) (*[32]byte, error) {
	derived, err := scrypt.Key(s.passphrase, salt, s.scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("assistant: derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], derived)
	return &key, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("assistant: create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("assistant: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("assistant: chmod credential: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("assistant: write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("assistant: close credential: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("assistant: replace credential: %w", err)
	}
	return nil
}
