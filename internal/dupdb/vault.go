package dupdb

import (
	"errors"
	"io"
)

// Vault stores index snapshots away from the watched machine's data directory.
// Items are addressed by host and name; each carries a version so a stale
// snapshot is never mistaken for the latest one.
type Vault interface {
	// PutSnapshot stores a named snapshot for a host.
	// size is the number of bytes that will be read from r.
	PutSnapshot(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the named snapshot for a host to w.
	GetSnapshot(hostID string, name string, w io.Writer) error

	// SnapshotVersion returns the stored version, or 0 when nothing was stored.
	SnapshotVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable and writable.
	ValidateSetup() error
}

// ErrSnapshotNotFound is returned by GetSnapshot when nothing is stored under the name.
var ErrSnapshotNotFound = errors.New("snapshot not found")
