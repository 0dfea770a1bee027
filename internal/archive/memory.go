package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryArchive keeps snapshots in memory. Safe for concurrent use.
type MemoryArchive struct {
	name     string
	mu       sync.RWMutex
	data     map[string][]byte
	versions map[string]int64
}

func NewMemoryArchive(name string) *MemoryArchive {
	return &MemoryArchive{
		name:     name,
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryArchive) Name() string { return m.name }

func (m *MemoryArchive) PutSnapshot(_ context.Context, deviceID string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[deviceID] = data
	m.versions[deviceID] = version
	return nil
}

func (m *MemoryArchive) GetSnapshot(_ context.Context, deviceID string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.data[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w for device %s", ErrSnapshotNotFound, deviceID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (m *MemoryArchive) SnapshotVersion(_ context.Context, deviceID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[deviceID], nil
}

func (m *MemoryArchive) ValidateSetup(context.Context) error { return nil }

var _ Archive = (*MemoryArchive)(nil)
