package dupdb

import "time"

// Index maps content hashes to the canonical paths currently holding that content.
// A path has at most one entry at any time.
type Index interface {
	// Upsert records that path now holds hash, retiring any prior entry for path
	// (even one under a different hash).
	Upsert(hash ContentHash, path string) error

	// Remove deletes the entry for path. It reports whether an entry existed;
	// removing an unindexed path is not an error.
	Remove(path string) (bool, error)

	// RemoveTree deletes every entry strictly below dir and returns how many went.
	RemoveTree(dir string) (int, error)

	// Lookup returns the hash currently recorded for path.
	Lookup(path string) (ContentHash, bool, error)

	// IsDuplicate reports whether two or more distinct paths map to hash.
	IsDuplicate(hash ContentHash) (bool, error)

	// PathsFor returns every path mapped to hash, sorted.
	PathsFor(hash ContentHash) ([]string, error)

	// DuplicateSets returns every hash held by two or more paths, ordered by hash.
	DuplicateSets() ([]DuplicateSet, error)

	// Count returns the number of indexed paths.
	Count() (int, error)

	// Reset removes all entries. Used before a full rescan.
	Reset() error

	// Flush persists the index. Backends that write through on every
	// operation implement this as a no-op.
	Flush() error

	// Close flushes and releases the backend.
	Close() error
}

// History records pipeline runs.
type History interface {
	RecordRun(run *Run) error

	// ListRuns returns up to limit runs, newest first.
	ListRuns(limit int) ([]*Run, error)
}

// Store is an Index that also keeps run history. Both backends implement it.
type Store interface {
	Index
	History

	// Snapshot writes a consistent copy of the persisted index to destPath.
	Snapshot(destPath string) error
}

// DuplicateSet is the set of paths sharing one hash. Paths has at least two elements.
type DuplicateSet struct {
	Hash  ContentHash
	Paths []string
}

// Run summarizes one pipeline pass over a batch of paths.
type Run struct {
	ID         string    `yaml:"id"`
	Trigger    string    `yaml:"trigger"` // "scan" or "watch"
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Processed  int       `yaml:"processed"`
	Updated    int       `yaml:"updated"`
	Removed    int       `yaml:"removed"`
	Skipped    int       `yaml:"skipped"`
	Failed     int       `yaml:"failed"`
	Duplicates int       `yaml:"duplicates"`

	// NewDuplicates lists the paths that joined a duplicate set during this run.
	NewDuplicates []string `yaml:"-"`
	// Dirty is set when the run mutated the index.
	Dirty bool `yaml:"-"`
}
