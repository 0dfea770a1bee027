// Package archive stores versioned snapshots of the local history database
// off the device.
package archive

import (
	"context"
	"errors"
	"io"
)

// ErrSnapshotNotFound is returned by GetSnapshot when no snapshot exists
// for the device.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Archive is a destination for history database snapshots, one per device.
type Archive interface {
	// Name identifies the archive in configuration and logs.
	Name() string

	// PutSnapshot stores the snapshot read from r, replacing any earlier one.
	// size is the number of bytes that will be read from r. version is
	// stored alongside for consistency checks.
	PutSnapshot(ctx context.Context, deviceID string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the latest snapshot for deviceID to w.
	GetSnapshot(ctx context.Context, deviceID string, w io.Writer) error

	// SnapshotVersion returns the version of the stored snapshot, or 0 if
	// none has been stored.
	SnapshotVersion(ctx context.Context, deviceID string) (int64, error)

	// ValidateSetup verifies that the archive is reachable and writable.
	ValidateSetup(ctx context.Context) error
}
