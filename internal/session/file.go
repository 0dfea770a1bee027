package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"alertsync/internal/alerts"
)

// FileStore persists the session as a single sealed file. Writes go to a
// temporary file in the same directory which is synced and renamed over
// the target, so a crash leaves either the old or the new session.
// Get reloads the file when another process has replaced or removed it.
type FileStore struct {
	path   string
	sealer Sealer

	mu      sync.Mutex
	current *alerts.Session
	loaded  fs.FileInfo // file state current was read from; nil when absent
}

var _ alerts.SessionStore = (*FileStore)(nil)

// NewFileStore opens the store at path, loading any existing session.
func NewFileStore(path string, sealer Sealer) (*FileStore, error) {
	s := &FileStore{path: path, sealer: sealer}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads the session file. Callers hold mu, except NewFileStore.
func (s *FileStore) load() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.current, s.loaded = nil, nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}

	sealed, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.current, s.loaded = nil, nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}

	var plain bytes.Buffer
	if err := s.sealer.Open(bytes.NewReader(sealed), &plain); err != nil {
		return fmt.Errorf("opening session file %s: %w", s.path, err)
	}

	var sess alerts.Session
	if err := json.Unmarshal(plain.Bytes(), &sess); err != nil {
		return fmt.Errorf("decoding session file %s: %w", s.path, err)
	}
	s.current, s.loaded = &sess, info
	return nil
}

// stale reports whether the file differs from the one current was read from.
func (s *FileStore) stale() (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s.loaded != nil, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking session file: %w", err)
	}
	if s.loaded == nil {
		return true, nil
	}
	return !os.SameFile(info, s.loaded) ||
		info.Size() != s.loaded.Size() ||
		!info.ModTime().Equal(s.loaded.ModTime()), nil
}

// Get returns a copy of the current session, or nil when logged out.
func (s *FileStore) Get() (*alerts.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stale, err := s.stale()
	if err != nil {
		return nil, err
	}
	if stale {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return clone(s.current), nil
}

// Replace writes sess durably, then makes it current.
func (s *FileStore) Replace(sess *alerts.Session) error {
	if sess == nil {
		return s.Clear()
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("checking session file: %w", err)
	}
	s.current, s.loaded = clone(sess), info
	return nil
}

// Clear removes the session file, then forgets the session.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	s.current, s.loaded = nil, nil
	return nil
}

func (s *FileStore) writeAtomic(plain []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := s.sealer.Seal(bytes.NewReader(plain), tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("sealing session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming session file: %w", err)
	}
	return syncDir(dir)
}

// syncDir flushes directory metadata so renames and removals survive a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening session directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing session directory: %w", err)
	}
	return nil
}
