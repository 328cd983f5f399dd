package dupdb

import (
	"errors"
	"fmt"
	"io/fs"
)

// Service is the orchestration layer behind the CLI's one-shot commands:
// inspecting the index, forgetting paths and moving snapshots to a vault.
// Watching and scanning go through Pipeline.
type Service struct {
	store     Store
	fsmgr     FilesystemManager
	vault     Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
	hostID    string
}

// NewService creates a Service. vault and encryptor may be nil when no
// snapshot command will be used.
func NewService(store Store, fsmgr FilesystemManager, vault Vault, encryptor Encryptor, logger Logger, clock Clock, hostID string) *Service {
	return &Service{
		store:     store,
		fsmgr:     fsmgr,
		vault:     vault,
		encryptor: encryptor,
		logger:    logger,
		clock:     clock,
		hostID:    hostID,
	}
}

// PathInfo describes what the index knows about one path.
type PathInfo struct {
	Path    string
	Indexed bool
	Hash    ContentHash
	// Copies lists the other paths with the same content, sorted.
	Copies []string
}

// Show looks a path up in the index.
func (s *Service) Show(rawPath string) (*PathInfo, error) {
	path, err := s.fsmgr.Canonicalize(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	hash, ok, err := s.store.Lookup(path)
	if err != nil {
		return nil, fmt.Errorf("looking up path: %w", err)
	}
	info := &PathInfo{Path: path, Indexed: ok, Hash: hash}
	if !ok {
		return info, nil
	}

	paths, err := s.store.PathsFor(hash)
	if err != nil {
		return nil, fmt.Errorf("listing copies: %w", err)
	}
	for _, p := range paths {
		if p != path {
			info.Copies = append(info.Copies, p)
		}
	}
	return info, nil
}

// DuplicateSets returns every set of two or more paths sharing content.
func (s *Service) DuplicateSets() ([]DuplicateSet, error) {
	sets, err := s.store.DuplicateSets()
	if err != nil {
		return nil, fmt.Errorf("listing duplicate sets: %w", err)
	}
	return sets, nil
}

// Status summarizes the index.
type Status struct {
	Indexed int
	Sets    int
	// Redundant counts the copies beyond the first in every set.
	Redundant int
}

// Status counts indexed paths and duplicate sets.
func (s *Service) Status() (*Status, error) {
	count, err := s.store.Count()
	if err != nil {
		return nil, fmt.Errorf("counting paths: %w", err)
	}
	sets, err := s.DuplicateSets()
	if err != nil {
		return nil, err
	}
	st := &Status{Indexed: count, Sets: len(sets)}
	for _, set := range sets {
		st.Redundant += len(set.Paths) - 1
	}
	return st, nil
}

// History returns the most recent runs, newest first.
func (s *Service) History(limit int) ([]*Run, error) {
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Forget drops a path, and anything indexed below it, from the index. With
// deleteFile the file itself is removed from disk first; directories are
// never deleted. Returns the number of index entries removed.
func (s *Service) Forget(rawPath string, deleteFile bool) (int, error) {
	path, err := s.fsmgr.Canonicalize(rawPath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	if deleteFile {
		info, err := s.fsmgr.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Already gone; just clean up the index.
		case err != nil:
			return 0, fmt.Errorf("checking path: %w", err)
		case info.IsDir():
			return 0, fmt.Errorf("refusing to delete directory: %s", path)
		default:
			if err := s.fsmgr.Remove(path); err != nil {
				return 0, fmt.Errorf("deleting file: %w", err)
			}
			s.logger.Info("file deleted", "path", path)
		}
	}

	removed, err := s.store.Remove(path)
	if err != nil {
		return 0, fmt.Errorf("removing path: %w", err)
	}
	below, err := s.store.RemoveTree(path)
	if err != nil {
		return 0, fmt.Errorf("removing entries below path: %w", err)
	}

	n := below
	if removed {
		n++
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.store.Flush(); err != nil {
		return n, fmt.Errorf("flushing index: %w", err)
	}
	s.logger.Info("path forgotten", "path", path, "entries", n)
	return n, nil
}
