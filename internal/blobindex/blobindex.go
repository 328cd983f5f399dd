// Package blobindex is a whole-file duplicate index. The full state lives in
// memory and is written to disk as one zstd-compressed YAML document when
// flushed.
package blobindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"dupdb/internal/dupdb"
)

// formatVersion is bumped when the document layout changes.
const formatVersion = 1

// MaxRuns is how many runs the index keeps in its history.
const MaxRuns = 200

// ErrLocked is returned by Open when another process holds the index.
// Each flush rewrites the whole file, so two writers would undo each
// other's changes.
var ErrLocked = errors.New("index is in use by another process")

// document is the on-disk form. Entries maps path to the decimal hash.
type document struct {
	Version int               `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
	Runs    []*dupdb.Run      `yaml:"runs,omitempty"`
}

// Index implements dupdb.Store with in-memory maps that are persisted as a
// single file.
type Index struct {
	mu     sync.RWMutex
	path   string
	byHash map[dupdb.ContentHash]map[string]struct{}
	byPath map[string]dupdb.ContentHash
	runs   []*dupdb.Run
	dirty  bool
	lock   *os.File
}

// Open loads the index stored at path and holds <path>.lock until Close.
// A second Open of the same path fails with ErrLocked. A missing file yields
// an empty index that will be created on the first Flush. An empty path keeps
// the index in memory only.
func Open(path string) (*Index, error) {
	idx := &Index{
		path:   path,
		byHash: make(map[dupdb.ContentHash]map[string]struct{}),
		byPath: make(map[string]dupdb.ContentHash),
	}
	if path == "" {
		return idx, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	lock, err := lockFile(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}

	if err := idx.load(); err != nil {
		unlockFile(lock)
		return nil, err
	}
	idx.lock = lock
	return idx, nil
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index file: %w", err)
	}
	if err := idx.decode(data); err != nil {
		return fmt.Errorf("loading index %s: %w", idx.path, err)
	}
	return nil
}

// Path returns the backing file, or "" for a memory-only index.
func (idx *Index) Path() string {
	return idx.path
}

func (idx *Index) Upsert(hash dupdb.ContentHash, path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, ok := idx.byPath[path]; ok {
		if prev == hash {
			return nil
		}
		idx.unlink(prev, path)
	}
	idx.link(hash, path)
	idx.dirty = true
	return nil
}

func (idx *Index) Remove(path string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	hash, ok := idx.byPath[path]
	if !ok {
		return false, nil
	}
	idx.unlink(hash, path)
	idx.dirty = true
	return true, nil
}

func (idx *Index) RemoveTree(dir string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prefix := dir + "/"
	removed := 0
	for path, hash := range idx.byPath {
		if strings.HasPrefix(path, prefix) {
			idx.unlink(hash, path)
			removed++
		}
	}
	if removed > 0 {
		idx.dirty = true
	}
	return removed, nil
}

func (idx *Index) Lookup(path string) (dupdb.ContentHash, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hash, ok := idx.byPath[path]
	return hash, ok, nil
}

func (idx *Index) IsDuplicate(hash dupdb.ContentHash) (bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.byHash[hash]) > 1, nil
}

func (idx *Index) PathsFor(hash dupdb.ContentHash) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return sortedPaths(idx.byHash[hash]), nil
}

func (idx *Index) DuplicateSets() ([]dupdb.DuplicateSet, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var sets []dupdb.DuplicateSet
	for hash, paths := range idx.byHash {
		if len(paths) > 1 {
			sets = append(sets, dupdb.DuplicateSet{Hash: hash, Paths: sortedPaths(paths)})
		}
	}
	slices.SortFunc(sets, func(a, b dupdb.DuplicateSet) int {
		switch {
		case a.Hash < b.Hash:
			return -1
		case a.Hash > b.Hash:
			return 1
		}
		return 0
	})
	return sets, nil
}

func (idx *Index) Count() (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.byPath), nil
}

func (idx *Index) Reset() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.byHash = make(map[dupdb.ContentHash]map[string]struct{})
	idx.byPath = make(map[string]dupdb.ContentHash)
	idx.dirty = true
	return nil
}

// Flush writes the index to its file when it has unsaved changes.
func (idx *Index) Flush() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if !idx.dirty || idx.path == "" {
		return nil
	}
	if err := idx.writeFile(idx.path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *Index) RecordRun(run *dupdb.Run) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	r := *run
	r.NewDuplicates = nil
	idx.runs = append(idx.runs, &r)
	if over := len(idx.runs) - MaxRuns; over > 0 {
		idx.runs = slices.Delete(idx.runs, 0, over)
	}
	idx.dirty = true
	return nil
}

func (idx *Index) ListRuns(limit int) ([]*dupdb.Run, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var out []*dupdb.Run
	for i := len(idx.runs) - 1; i >= 0 && len(out) < limit; i-- {
		r := *idx.runs[i]
		out = append(out, &r)
	}
	return out, nil
}

// Snapshot writes the current state to destPath, independent of whether it
// has been flushed.
func (idx *Index) Snapshot(destPath string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.writeFile(destPath)
}

// Close flushes pending changes and releases the lock.
func (idx *Index) Close() error {
	err := idx.Flush()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.lock != nil {
		if uerr := unlockFile(idx.lock); err == nil {
			err = uerr
		}
		idx.lock = nil
	}
	return err
}

func (idx *Index) link(hash dupdb.ContentHash, path string) {
	set, ok := idx.byHash[hash]
	if !ok {
		set = make(map[string]struct{})
		idx.byHash[hash] = set
	}
	set[path] = struct{}{}
	idx.byPath[path] = hash
}

func (idx *Index) unlink(hash dupdb.ContentHash, path string) {
	delete(idx.byPath, path)
	set := idx.byHash[hash]
	delete(set, path)
	if len(set) == 0 {
		delete(idx.byHash, hash)
	}
}

func (idx *Index) encode() ([]byte, error) {
	doc := document{
		Version: formatVersion,
		Entries: make(map[string]string, len(idx.byPath)),
		Runs:    idx.runs,
	}
	for path, hash := range idx.byPath {
		doc.Entries[path] = hash.String()
	}

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal index: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(raw, nil), nil
}

func (idx *Index) decode(data []byte) error {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("failed to decompress index: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal index: %w", err)
	}
	if doc.Version != formatVersion {
		return fmt.Errorf("unsupported index format version %d", doc.Version)
	}

	for path, rawHash := range doc.Entries {
		hash, err := dupdb.ParseContentHash(rawHash)
		if err != nil {
			return err
		}
		idx.link(hash, path)
	}
	idx.runs = doc.Runs
	return nil
}

// writeFile encodes the index and replaces path atomically via a temp file
// in the same directory.
func (idx *Index) writeFile(path string) error {
	data, err := idx.encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

func sortedPaths(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

var _ dupdb.Store = (*Index)(nil)
