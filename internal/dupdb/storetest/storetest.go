// Package storetest holds behaviour tests shared by every dupdb.Store backend.
package storetest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupdb/internal/dupdb"
)

// Run exercises newStore against the dupdb.Store contract. newStore must
// return an empty store that is closed by the test's cleanup.
func Run(t *testing.T, newStore func(t *testing.T) dupdb.Store) {
	t.Run("upsert and lookup", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(1, "/w/a.txt"))

		h, ok, err := s.Lookup("/w/a.txt")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, dupdb.ContentHash(1), h)

		_, ok, err = s.Lookup("/w/missing.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(7, "/w/a.txt"))
		require.NoError(t, s.Upsert(7, "/w/a.txt"))

		n, err := s.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		dup, err := s.IsDuplicate(7)
		require.NoError(t, err)
		assert.False(t, dup, "one path twice is not a duplicate")
	})

	t.Run("upsert retires prior hash of the path", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(1, "/w/a.txt"))
		require.NoError(t, s.Upsert(1, "/w/b.txt"))
		require.NoError(t, s.Upsert(2, "/w/a.txt"))

		paths, err := s.PathsFor(1)
		require.NoError(t, err)
		assert.Equal(t, []string{"/w/b.txt"}, paths)

		dup, err := s.IsDuplicate(1)
		require.NoError(t, err)
		assert.False(t, dup)

		paths, err = s.PathsFor(2)
		require.NoError(t, err)
		assert.Equal(t, []string{"/w/a.txt"}, paths)
	})

	t.Run("duplicate needs two distinct paths", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(5, "/w/a.txt"))
		dup, err := s.IsDuplicate(5)
		require.NoError(t, err)
		assert.False(t, dup)

		require.NoError(t, s.Upsert(5, "/w/b.txt"))
		dup, err = s.IsDuplicate(5)
		require.NoError(t, err)
		assert.True(t, dup)

		dup, err = s.IsDuplicate(6)
		require.NoError(t, err)
		assert.False(t, dup, "unknown hash")
	})

	t.Run("paths are sorted", func(t *testing.T) {
		s := newStore(t)

		for _, p := range []string{"/w/c.txt", "/w/a.txt", "/w/b.txt"} {
			require.NoError(t, s.Upsert(9, p))
		}

		paths, err := s.PathsFor(9)
		require.NoError(t, err)
		assert.Equal(t, []string{"/w/a.txt", "/w/b.txt", "/w/c.txt"}, paths)

		paths, err = s.PathsFor(10)
		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("remove", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(3, "/w/a.txt"))
		require.NoError(t, s.Upsert(3, "/w/b.txt"))

		removed, err := s.Remove("/w/a.txt")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Remove("/w/a.txt")
		require.NoError(t, err)
		assert.False(t, removed, "second remove is a no-op")

		dup, err := s.IsDuplicate(3)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("remove tree only touches paths below dir", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(1, "/w/sub/a.txt"))
		require.NoError(t, s.Upsert(1, "/w/sub/deep/b.txt"))
		require.NoError(t, s.Upsert(1, "/w/sub.txt"))
		require.NoError(t, s.Upsert(1, "/w/subway/c.txt"))

		n, err := s.RemoveTree("/w/sub")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		count, err := s.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		paths, err := s.PathsFor(1)
		require.NoError(t, err)
		assert.Equal(t, []string{"/w/sub.txt", "/w/subway/c.txt"}, paths)
	})

	t.Run("duplicate sets ordered by hash", func(t *testing.T) {
		s := newStore(t)

		// 10 sorts before 9 as text; sets must come back numerically.
		require.NoError(t, s.Upsert(10, "/w/x1"))
		require.NoError(t, s.Upsert(10, "/w/x2"))
		require.NoError(t, s.Upsert(9, "/w/y2"))
		require.NoError(t, s.Upsert(9, "/w/y1"))
		require.NoError(t, s.Upsert(11, "/w/single"))

		sets, err := s.DuplicateSets()
		require.NoError(t, err)
		require.Len(t, sets, 2)
		assert.Equal(t, dupdb.ContentHash(9), sets[0].Hash)
		assert.Equal(t, []string{"/w/y1", "/w/y2"}, sets[0].Paths)
		assert.Equal(t, dupdb.ContentHash(10), sets[1].Hash)
	})

	t.Run("large hashes survive storage", func(t *testing.T) {
		s := newStore(t)

		big := dupdb.ContentHash(^uint64(0))
		require.NoError(t, s.Upsert(big, "/w/a"))

		h, ok, err := s.Lookup("/w/a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, big, h)
	})

	t.Run("reset empties the index", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(1, "/w/a"))
		require.NoError(t, s.Upsert(1, "/w/b"))
		require.NoError(t, s.Reset())

		n, err := s.Count()
		require.NoError(t, err)
		assert.Zero(t, n)

		dup, err := s.IsDuplicate(1)
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("runs listed newest first", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		for i, id := range []string{"r1", "r2", "r3"} {
			start := base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.RecordRun(&dupdb.Run{
				ID:         id,
				Trigger:    "watch",
				StartedAt:  start,
				FinishedAt: start.Add(time.Second),
				Processed:  i + 1,
				Duplicates: i,
			}))
		}

		runs, err := s.ListRuns(2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "r3", runs[0].ID)
		assert.Equal(t, "r2", runs[1].ID)
		assert.Equal(t, 3, runs[0].Processed)
		assert.Equal(t, 2, runs[0].Duplicates)
		assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Minute)))
	})

	t.Run("snapshot writes a file", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(1, "/w/a"))

		dest := filepath.Join(t.TempDir(), "snap")
		require.NoError(t, s.Snapshot(dest))
		assert.FileExists(t, dest)

		// A second snapshot replaces the first.
		require.NoError(t, s.Snapshot(dest))
		assert.FileExists(t, dest)
	})
}
