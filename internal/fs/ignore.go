package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are always applied regardless of config or .dupdbignore.
var defaultIgnorePatterns = []string{IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against each path component
	dirOnly   bool // trailing '/': only matches a directory above the entry
}

// IgnoreMatcher checks file paths against a set of ignore patterns.
// Patterns without '/' match any single component of the path, so a
// directory name ignores everything below it. Patterns with '/' match the
// relative path from the root or any of its leading directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings plus the defaults.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string(nil), defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		dirOnly := strings.HasSuffix(raw, "/")
		raw = strings.TrimPrefix(strings.TrimSuffix(raw, "/"), "/")
		if raw == "" {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
			dirOnly:   dirOnly,
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be ignored.
// relativePath should use filepath separators and be relative to the directory root.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}

	// Normalize to forward slashes for consistent matching.
	normalized := strings.TrimPrefix(filepath.ToSlash(relativePath), "/")
	components := strings.Split(normalized, "/")

	for _, p := range m.patterns {
		// Directory-only patterns never match the final component.
		limit := len(components)
		if p.dirOnly {
			limit--
		}

		for i := 0; i < limit; i++ {
			var subject string
			if p.matchPath {
				subject = strings.Join(components[:i+1], "/")
			} else {
				subject = components[i]
			}
			matched, err := filepath.Match(p.pattern, subject)
			if err != nil {
				// Bad pattern, skip rather than crash.
				break
			}
			if matched {
				return true
			}
		}
	}
	return false
}

// ParseIgnoreFile reads a .dupdbignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
