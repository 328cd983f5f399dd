package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"dupdb/internal/dupdb"
)

// Source produces raw path events until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, push func(path string)) error
}

// Scanner lists the files below a directory.
type Scanner interface {
	Scan(root string) iter.Seq[string]
}

// NotifySource watches a tree recursively with fsnotify.
type NotifySource struct {
	watcher *fsnotify.Watcher
	scanner Scanner
	ignored func(path string) bool
	logger  dupdb.Logger
}

// NewNotifySource adds a watch for root and every non-ignored directory
// below it. Failing to watch root itself is an error; subdirectories that
// cannot be watched are logged and skipped.
func NewNotifySource(root string, scanner Scanner, ignored func(string) bool, logger dupdb.Logger) (*NotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s := &NotifySource{
		watcher: w,
		scanner: scanner,
		ignored: ignored,
		logger:  logger,
	}

	if err := w.Add(root); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	s.addTree(root, false)

	return s, nil
}

// WatchList returns the directories currently watched.
func (s *NotifySource) WatchList() []string {
	return s.watcher.WatchList()
}

// Run forwards events to push until ctx is cancelled, then closes the watcher.
func (s *NotifySource) Run(ctx context.Context, push func(string)) error {
	defer s.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handle(ev, push)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				s.logger.Warn("filesystem events were lost; run a scan to resync", "error", err)
				continue
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

func (s *NotifySource) handle(ev fsnotify.Event, push func(string)) {
	if s.ignored(ev.Name) {
		return
	}
	// Permission and timestamp changes leave content alone.
	if ev.Op == fsnotify.Chmod {
		return
	}

	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			// Files may land in a new directory before its watch exists.
			s.addTree(ev.Name, true)
			for p := range s.scanner.Scan(ev.Name) {
				push(p)
			}
			return
		}
	}

	push(ev.Name)
}

// addTree watches every directory below dir. The root itself is expected to
// be watched already unless includeRoot is set.
func (s *NotifySource) addTree(dir string, includeRoot bool) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("skipping unreadable directory", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == dir && !includeRoot {
			return nil
		}
		if path != dir && s.ignored(path) {
			return filepath.SkipDir
		}
		if err := s.watcher.Add(path); err != nil {
			s.logger.Warn("cannot watch directory", "path", path, "error", err)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("walking directory for watches failed", "path", dir, "error", err)
	}
}

var _ Source = (*NotifySource)(nil)
