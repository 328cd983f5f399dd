package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"dupdb/internal/database/migrations"
	"dupdb/internal/dupdb"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements dupdb.Store on a single SQLite table of
// (hash, path) rows plus a runs table. Every mutation is written through,
// so Flush has nothing to do.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database at path and migrates it to the latest
// schema. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured
// and carries the schema.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; this also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Index operations

func (s *SQLiteStore) Upsert(hash dupdb.ContentHash, path string) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM dupindex WHERE path = ?", path); err != nil {
		return fmt.Errorf("retiring prior entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO dupindex (hash, path) VALUES (?, ?)", hash.String(), path); err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(path string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM dupindex WHERE path = ?", path)
	if err != nil {
		return false, fmt.Errorf("removing entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing entry: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) RemoveTree(dir string) (int, error) {
	// '0' sorts directly after '/', so this range is exactly the paths under dir/.
	res, err := s.db.Exec("DELETE FROM dupindex WHERE path >= ? AND path < ?", dir+"/", dir+"0")
	if err != nil {
		return 0, fmt.Errorf("removing tree: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("removing tree: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Lookup(path string) (dupdb.ContentHash, bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT hash FROM dupindex WHERE path = ?", path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up path: %w", err)
	}

	hash, err := dupdb.ParseContentHash(raw)
	if err != nil {
		return 0, false, fmt.Errorf("looking up path: %w", err)
	}
	return hash, true, nil
}

func (s *SQLiteStore) IsDuplicate(hash dupdb.ContentHash) (bool, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM (SELECT 1 FROM dupindex WHERE hash = ? LIMIT 2)", hash.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking duplicate: %w", err)
	}
	return n > 1, nil
}

func (s *SQLiteStore) PathsFor(hash dupdb.ContentHash) ([]string, error) {
	rows, err := s.db.Query("SELECT path FROM dupindex WHERE hash = ? ORDER BY path", hash.String())
	if err != nil {
		return nil, fmt.Errorf("listing paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("listing paths: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing paths: %w", err)
	}
	return paths, nil
}

func (s *SQLiteStore) DuplicateSets() ([]dupdb.DuplicateSet, error) {
	rows, err := s.db.Query(`
		SELECT hash, path FROM dupindex
		WHERE hash IN (SELECT hash FROM dupindex GROUP BY hash HAVING COUNT(*) > 1)
		ORDER BY hash, path`)
	if err != nil {
		return nil, fmt.Errorf("listing duplicate sets: %w", err)
	}
	defer rows.Close()

	var sets []dupdb.DuplicateSet
	for rows.Next() {
		var raw, p string
		if err := rows.Scan(&raw, &p); err != nil {
			return nil, fmt.Errorf("listing duplicate sets: %w", err)
		}
		hash, err := dupdb.ParseContentHash(raw)
		if err != nil {
			return nil, fmt.Errorf("listing duplicate sets: %w", err)
		}
		if n := len(sets); n > 0 && sets[n-1].Hash == hash {
			sets[n-1].Paths = append(sets[n-1].Paths, p)
			continue
		}
		sets = append(sets, dupdb.DuplicateSet{Hash: hash, Paths: []string{p}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing duplicate sets: %w", err)
	}

	// Hashes are stored as decimal text; order them numerically.
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

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM dupindex").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Reset() error {
	if _, err := s.db.Exec("DELETE FROM dupindex"); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	return nil
}

// Flush is a no-op: every operation commits on its own.
func (s *SQLiteStore) Flush() error {
	return nil
}

// Run history

func (s *SQLiteStore) RecordRun(run *dupdb.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, trigger, started_at, finished_at, processed, updated, removed, skipped, failed, duplicates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Trigger, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Processed, run.Updated, run.Removed, run.Skipped, run.Failed, run.Duplicates,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(limit int) ([]*dupdb.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, trigger, started_at, finished_at, processed, updated, removed, skipped, failed, duplicates
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*dupdb.Run
	for rows.Next() {
		r := &dupdb.Run{}
		if err := rows.Scan(&r.ID, &r.Trigger, &r.StartedAt, &r.FinishedAt,
			&r.Processed, &r.Updated, &r.Removed, &r.Skipped, &r.Failed, &r.Duplicates); err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Snapshot creates a complete copy of the database at destPath using VACUUM INTO.
// An existing file at destPath is replaced.
func (s *SQLiteStore) Snapshot(destPath string) error {
	if err := os.Remove(destPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing snapshot destination: %w", err)
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements dupdb.Store interface
var _ dupdb.Store = (*SQLiteStore)(nil)
