package dupdb

import "io/fs"

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Canonicalize returns the absolute path with symlinks and relative segments
	// resolved. Paths that no longer exist are resolved through their parent so
	// a removal event maps to the same key as the original upsert.
	Canonicalize(rawPath string) (string, error)

	// Stat returns fresh file info for a path, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// Hash reads the whole file and returns its content hash.
	Hash(path string) (ContentHash, error)

	// IsIgnored reports whether path should never be indexed.
	IsIgnored(path string) bool

	// Remove deletes a file from disk.
	Remove(path string) error
}
