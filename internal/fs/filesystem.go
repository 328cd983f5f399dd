package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"dupdb/internal/dupdb"
)

// IgnoreFileName is read from the watched root, if present, for extra ignore patterns.
const IgnoreFileName = ".dupdbignore"

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// Ignore patterns are evaluated relative to the watched root.
type OSFilesystemManager struct {
	root     string
	ignore   *IgnoreMatcher
	excluded []string
	logger   dupdb.Logger
}

// NewOSFilesystemManager creates a filesystem manager for the tree under root.
// patterns are combined with the root's .dupdbignore file.
func NewOSFilesystemManager(root string, patterns []string, logger dupdb.Logger) (*OSFilesystemManager, error) {
	m := &OSFilesystemManager{logger: logger}

	canonical, err := m.Canonicalize(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	m.root = canonical

	fromFile, err := ParseIgnoreFile(filepath.Join(canonical, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	m.ignore = NewIgnoreMatcher(append(append([]string(nil), patterns...), fromFile...))

	return m, nil
}

// Root returns the canonical watched root.
func (m *OSFilesystemManager) Root() string {
	return m.root
}

// Canonicalize returns the absolute, symlink-free form of rawPath. A path that
// no longer exists is resolved through its nearest existing ancestor.
func (m *OSFilesystemManager) Canonicalize(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	return resolve(absPath)
}

func resolve(absPath string) (string, error) {
	resolved, err := filepath.EvalSymlinks(absPath)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolving symlinks: %w", err)
	}

	parent := filepath.Dir(absPath)
	if parent == absPath {
		return absPath, nil
	}
	resolvedParent, err := resolve(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(absPath)), nil
}

// Stat returns fresh file info for a path, following symlinks.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Hash streams the file through the content hasher.
func (m *OSFilesystemManager) Hash(path string) (dupdb.ContentHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return dupdb.HashReader(f)
}

// IsIgnored reports whether path matches an ignore pattern. Paths outside
// the root are matched on their absolute form.
func (m *OSFilesystemManager) IsIgnored(path string) bool {
	for _, dir := range m.excluded {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = path
	}
	if rel == "." {
		return false
	}
	return m.ignore.Match(rel)
}

// ExcludeTree ignores dir and everything below it, whatever the patterns
// say. Used to keep dupdb's own database and logs out of the index when they
// live under the watched root.
func (m *OSFilesystemManager) ExcludeTree(dir string) error {
	canonical, err := m.Canonicalize(dir)
	if err != nil {
		return fmt.Errorf("resolving excluded dir: %w", err)
	}
	m.excluded = append(m.excluded, canonical)
	return nil
}

// Remove deletes a file from disk.
func (m *OSFilesystemManager) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// Scan walks the tree under root, skipping ignored directories.
func (m *OSFilesystemManager) Scan(root string) iter.Seq[string] {
	return Scan(root, m.logger, m.IsIgnored)
}

// Compile-time check that OSFilesystemManager implements dupdb.FilesystemManager interface
var _ dupdb.FilesystemManager = (*OSFilesystemManager)(nil)
