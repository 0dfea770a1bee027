package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSystemArchive stores snapshots as files:
//
//	<root>/
//	  snapshots/
//	    <deviceID>.db
//	    <deviceID>.version
type FileSystemArchive struct {
	name string
	root string
	dir  string
}

// NewFileSystemArchive creates the directory layout under root.
func NewFileSystemArchive(name, root string) (*FileSystemArchive, error) {
	dir := filepath.Join(root, "snapshots")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileSystemArchive{name: name, root: root, dir: dir}, nil
}

func (a *FileSystemArchive) Name() string { return a.name }

// PutSnapshot writes the snapshot and then its version, each atomically.
func (a *FileSystemArchive) PutSnapshot(_ context.Context, deviceID string, r io.Reader, size int64, version int64) error {
	if err := writeAtomic(a.snapshotPath(deviceID), r, size); err != nil {
		return err
	}
	v := strconv.FormatInt(version, 10)
	return writeAtomic(a.versionPath(deviceID), strings.NewReader(v), int64(len(v)))
}

func (a *FileSystemArchive) GetSnapshot(_ context.Context, deviceID string, w io.Writer) error {
	f, err := os.Open(a.snapshotPath(deviceID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w for device %s", ErrSnapshotNotFound, deviceID)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

func (a *FileSystemArchive) SnapshotVersion(_ context.Context, deviceID string) (int64, error) {
	data, err := os.ReadFile(a.versionPath(deviceID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the snapshot directory exists and accepts writes.
func (a *FileSystemArchive) ValidateSetup(context.Context) error {
	info, err := os.Stat(a.dir)
	if err != nil {
		return fmt.Errorf("archive directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive path is not a directory: %s", a.dir)
	}

	probe, err := os.CreateTemp(a.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("archive directory not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func (a *FileSystemArchive) snapshotPath(deviceID string) string {
	return filepath.Join(a.dir, deviceID+".db")
}

func (a *FileSystemArchive) versionPath(deviceID string) string {
	return filepath.Join(a.dir, deviceID+".version")
}

// writeAtomic copies r to destPath through a temp file in the same
// directory. expectedSize must match the bytes read.
func writeAtomic(destPath string, r io.Reader, expectedSize int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ Archive = (*FileSystemArchive)(nil)
