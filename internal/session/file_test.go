package session

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"alertsync/internal/alerts"
	"alertsync/internal/config"
)

// plainSealer passes data through unchanged.
type plainSealer struct{}

func (plainSealer) Seal(r io.Reader, w io.Writer) error { _, err := io.Copy(w, r); return err }
func (plainSealer) Open(r io.Reader, w io.Writer) error { _, err := io.Copy(w, r); return err }

// failingSealer fails every Seal.
type failingSealer struct{ plainSealer }

func (failingSealer) Seal(io.Reader, io.Writer) error { return errors.New("disk full") }

func newSession(access string) *alerts.Session {
	exp := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return &alerts.Session{UserID: "u-1", AccessToken: access, RefreshToken: "refresh-" + access, ExpiresAt: &exp}
}

func stores(t *testing.T) map[string]alerts.SessionStore {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "session"), plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return map[string]alerts.SessionStore{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_ReplaceGetClear(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Get()
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != nil {
				t.Fatalf("Get() = %+v before any Replace, want nil", got)
			}

			s1 := newSession("a1")
			if err := store.Replace(s1); err != nil {
				t.Fatalf("Replace() error = %v", err)
			}
			got, _ = store.Get()
			if got == nil || got.AccessToken != "a1" || got.RefreshToken != "refresh-a1" || !got.ExpiresAt.Equal(*s1.ExpiresAt) {
				t.Fatalf("Get() = %+v, want %+v", got, s1)
			}

			// Mutating returned values must not leak into the store.
			got.AccessToken = "tampered"
			*got.ExpiresAt = time.Time{}
			again, _ := store.Get()
			if again.AccessToken != "a1" || again.ExpiresAt.IsZero() {
				t.Errorf("store state changed through returned pointer: %+v", again)
			}

			if err := store.Replace(newSession("a2")); err != nil {
				t.Fatalf("Replace() error = %v", err)
			}
			got, _ = store.Get()
			if got.AccessToken != "a2" {
				t.Errorf("AccessToken = %s, want a2", got.AccessToken)
			}

			if err := store.Clear(); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			got, _ = store.Get()
			if got != nil {
				t.Errorf("Get() after Clear = %+v, want nil", got)
			}

			// Clearing twice is fine.
			if err := store.Clear(); err != nil {
				t.Errorf("second Clear() error = %v", err)
			}
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session")

	s, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := s.Replace(newSession("persisted")); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	reopened, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() reopen error = %v", err)
	}
	got, _ := reopened.Get()
	if got == nil || got.AccessToken != "persisted" || got.UserID != "u-1" {
		t.Fatalf("Get() after reopen = %+v", got)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("session file still present after Clear: %v", err)
	}

	cleared, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() after clear error = %v", err)
	}
	if got, _ := cleared.Get(); got != nil {
		t.Errorf("cleared session resurrected: %+v", got)
	}
}

func TestFileStore_SeesOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")

	// Two stores on one path stand in for separate processes.
	a, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore(a) error = %v", err)
	}
	b, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore(b) error = %v", err)
	}

	steps := []struct {
		name   string
		write  func() error
		reader *FileStore
		want   string // "" means logged out
	}{
		{"login elsewhere", func() error { return b.Replace(newSession("b1")) }, a, "b1"},
		{"same-size rotation", func() error { return b.Replace(newSession("b2")) }, a, "b2"},
		{"logout elsewhere", b.Clear, a, ""},
		{"login back", func() error { return a.Replace(newSession("a1")) }, b, "a1"},
	}

	for _, step := range steps {
		if err := step.write(); err != nil {
			t.Fatalf("%s: write error = %v", step.name, err)
		}
		got, err := step.reader.Get()
		if err != nil {
			t.Fatalf("%s: Get() error = %v", step.name, err)
		}
		switch {
		case step.want == "" && got != nil:
			t.Errorf("%s: Get() = %+v, want nil", step.name, got)
		case step.want != "" && (got == nil || got.AccessToken != step.want):
			t.Errorf("%s: Get() = %+v, want access token %s", step.name, got, step.want)
		}
	}
}

func TestFileStore_FailedReplaceKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")

	good, err := NewFileStore(path, plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := good.Replace(newSession("old")); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	bad, err := NewFileStore(path, failingSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := bad.Replace(newSession("new")); err == nil {
		t.Fatal("Replace() with failing sealer succeeded, want error")
	}
	got, _ := bad.Get()
	if got == nil || got.AccessToken != "old" {
		t.Errorf("Get() after failed Replace = %+v, want old session", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the session file, found %d entries", len(entries))
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, plainSealer{}); err == nil {
		t.Error("NewFileStore() on corrupt file succeeded, want error")
	}
}

func TestFileStore_ConcurrentAccess(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "session"), plainSealer{})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if err := s.Replace(newSession(string(rune('a' + i)))); err != nil {
				t.Errorf("Replace() error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			got, err := s.Get()
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			// Either nothing yet or a complete session.
			if got != nil && got.RefreshToken != "refresh-"+got.AccessToken {
				t.Errorf("observed torn session: %+v", got)
			}
		}()
	}
	wg.Wait()
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		got, err := NewStoreFromConfig(config.SessionConfig{Type: "memory"}, nil)
		if err != nil || got == nil {
			t.Errorf("NewStoreFromConfig() = %v, %v", got, err)
		}
	})

	t.Run("file", func(t *testing.T) {
		cfg := config.SessionConfig{Type: "file", Path: filepath.Join(t.TempDir(), "session")}
		got, err := NewStoreFromConfig(cfg, plainSealer{})
		if err != nil || got == nil {
			t.Errorf("NewStoreFromConfig() = %v, %v", got, err)
		}
	})

	t.Run("file without path", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.SessionConfig{Type: "file"}, plainSealer{}); err == nil {
			t.Error("NewStoreFromConfig() expected error for missing path")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.SessionConfig{Type: "keychain"}, nil); err == nil {
			t.Error("NewStoreFromConfig() expected error for unknown type")
		}
	})
}

func TestClone(t *testing.T) {
	if clone(nil) != nil {
		t.Error("clone(nil) != nil")
	}
	s := newSession("x")
	c := clone(s)
	if c == s || c.ExpiresAt == s.ExpiresAt {
		t.Error("clone shares memory with original")
	}
	if c.AccessToken != "x" || !c.ExpiresAt.Equal(*s.ExpiresAt) {
		t.Errorf("clone = %+v, want copy of %+v", c, s)
	}
}
