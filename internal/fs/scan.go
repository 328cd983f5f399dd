package fs

import (
	"iter"
	"os"
	"path/filepath"

	"dupdb/internal/dupdb"
)

// Scan returns a lazy breadth-first sequence of every non-directory entry
// under root. Entries of one directory are yielded in os.ReadDir order, and a
// level is finished before the next is entered. Directories are never
// yielded; symlinks to directories are yielded as entries, not followed.
//
// Each range over the sequence starts a fresh traversal. Unreadable
// directories are logged and skipped. skipDir, when non-nil, prunes
// directories below root.
func Scan(root string, logger dupdb.Logger, skipDir func(dir string) bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		queue := []string{root}
		for len(queue) > 0 {
			dir := queue[0]
			queue = queue[1:]

			entries, err := os.ReadDir(dir)
			if err != nil {
				logger.Warn("skipping unreadable directory", "path", dir, "error", err)
				continue
			}

			for _, entry := range entries {
				path := filepath.Join(dir, entry.Name())
				if entry.IsDir() {
					if skipDir == nil || !skipDir(path) {
						queue = append(queue, path)
					}
					continue
				}
				if !yield(path) {
					return
				}
			}
		}
	}
}
