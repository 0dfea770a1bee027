package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"alertsync/internal/session"
)

// AgeSealer implements session.Sealer using filippo.io/age with an X25519
// identity kept in a key file next to the sealed data. The key file is
// generated with mode 0600 on first use.
type AgeSealer struct {
	keyPath string

	mu       sync.Mutex
	identity *age.X25519Identity
}

var _ session.Sealer = (*AgeSealer)(nil)

// NewAgeSealer creates a sealer whose identity lives at keyPath.
func NewAgeSealer(keyPath string) *AgeSealer {
	return &AgeSealer{keyPath: keyPath}
}

// Seal encrypts plaintext from r to w, generating the identity if needed.
func (s *AgeSealer) Seal(r io.Reader, w io.Writer) error {
	identity, err := s.loadIdentity(true)
	if err != nil {
		return err
	}

	encWriter, err := age.Encrypt(w, identity.Recipient())
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Open decrypts ciphertext from r to w. It fails if the identity is missing.
func (s *AgeSealer) Open(r io.Reader, w io.Writer) error {
	identity, err := s.loadIdentity(false)
	if err != nil {
		return err
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}

// IsConfigured returns true if the identity file exists.
func (s *AgeSealer) IsConfigured() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

func (s *AgeSealer) loadIdentity(create bool) (*age.X25519Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity != nil {
		return s.identity, nil
	}

	data, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil:
		identities, err := age.ParseIdentities(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing session key: %w", err)
		}
		if len(identities) == 0 {
			return nil, fmt.Errorf("no identities found in %s", s.keyPath)
		}
		id, ok := identities[0].(*age.X25519Identity)
		if !ok {
			return nil, fmt.Errorf("session key %s is not an X25519 identity", s.keyPath)
		}
		s.identity = id
		return id, nil
	case errors.Is(err, fs.ErrNotExist) && create:
		return s.generate()
	default:
		return nil, fmt.Errorf("reading session key: %w", err)
	}
}

// generate creates and stores a new identity. Callers hold s.mu.
func (s *AgeSealer) generate() (*age.X25519Identity, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(s.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating session key file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, identity.String()+"\n"); err != nil {
		return nil, fmt.Errorf("writing session key: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("syncing session key: %w", err)
	}
	s.identity = identity
	return identity, nil
}
