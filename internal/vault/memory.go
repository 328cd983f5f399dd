package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"dupdb/internal/dupdb"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name      string
	snapshots map[string][]byte // "hostID/name" -> snapshot
	versions  map[string]int64  // "hostID/name" -> version
	mu        sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:      name,
		snapshots: make(map[string][]byte),
		versions:  make(map[string]int64),
	}
}

// snapshotKey returns the map key for a host/name pair.
func snapshotKey(hostID, name string) string {
	return hostID + "/" + name
}

// PutSnapshot stores a named snapshot for a specific host.
func (m *MemoryVault) PutSnapshot(hostID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := snapshotKey(hostID, name)
	m.snapshots[key] = data
	m.versions[key] = version
	return nil
}

// SnapshotVersion returns 0 if nothing has been stored for this host/name.
func (m *MemoryVault) SnapshotVersion(hostID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.versions[snapshotKey(hostID, name)], nil
}

// GetSnapshot retrieves a named snapshot for a specific host.
func (m *MemoryVault) GetSnapshot(hostID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.snapshots[snapshotKey(hostID, name)]
	if !ok {
		return fmt.Errorf("%w: %q for host %s", dupdb.ErrSnapshotNotFound, name, hostID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements dupdb.Vault interface
var _ dupdb.Vault = (*MemoryVault)(nil)
