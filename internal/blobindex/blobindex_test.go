package blobindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupdb/internal/dupdb"
	"dupdb/internal/dupdb/storetest"
)

func TestIndex_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) dupdb.Store {
		idx, err := Open(filepath.Join(t.TempDir(), "index.dat"))
		require.NoError(t, err)
		t.Cleanup(func() { idx.Close() })
		return idx
	})
}

func TestIndex_MemoryOnly(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(1, "/w/a"))
	require.NoError(t, idx.Flush())
	require.NoError(t, idx.Close())

	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIndex_FlushAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "index.dat")

	idx, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(42, "/w/a.jpg"))
	require.NoError(t, idx.Upsert(42, "/w/b.jpg"))
	require.NoError(t, idx.Upsert(7, "/w/c.txt"))
	require.NoError(t, idx.RecordRun(&dupdb.Run{
		ID:            "run-1",
		Trigger:       "scan",
		StartedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		FinishedAt:    time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
		Processed:     3,
		NewDuplicates: []string{"/w/b.jpg"},
	}))

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing is written before Flush")

	require.NoError(t, idx.Flush())
	require.FileExists(t, path)
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	paths, err := reopened.PathsFor(42)
	require.NoError(t, err)
	assert.Equal(t, []string{"/w/a.jpg", "/w/b.jpg"}, paths)

	h, ok, err := reopened.Lookup("/w/c.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dupdb.ContentHash(7), h)

	runs, err := reopened.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, 3, runs[0].Processed)
	assert.Nil(t, runs[0].NewDuplicates)
}

func TestIndex_FlushSkipsCleanIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Flush())

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIndex_SnapshotIsLoadable(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(3, "/w/a"))
	require.NoError(t, idx.Upsert(3, "/w/b"))

	dest := filepath.Join(t.TempDir(), "snapshot.dat")
	require.NoError(t, idx.Snapshot(dest))

	loaded, err := Open(dest)
	require.NoError(t, err)
	defer loaded.Close()
	dup, err := loaded.IsDuplicate(3)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestIndex_RunHistoryIsBounded(t *testing.T) {
	idx, err := Open("")
	require.NoError(t, err)

	for i := 0; i < MaxRuns+5; i++ {
		require.NoError(t, idx.RecordRun(&dupdb.Run{ID: string(rune('a' + i%26)), Processed: i}))
	}

	runs, err := idx.ListRuns(MaxRuns * 2)
	require.NoError(t, err)
	assert.Len(t, runs, MaxRuns)
	assert.Equal(t, MaxRuns+4, runs[0].Processed)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpen_SecondWriterIsRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")

	watcher, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, watcher.Upsert(1, "/w/a.txt"))
	require.NoError(t, watcher.Upsert(1, "/w/b.txt"))
	require.NoError(t, watcher.Flush())

	// A one-shot command must not load a copy that the watcher would later overwrite.
	_, err = Open(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, watcher.Upsert(2, "/w/c.txt"))
	require.NoError(t, watcher.Close())

	cli, err := Open(path)
	require.NoError(t, err, "lock is released by Close")
	removed, err := cli.Remove("/w/b.txt")
	require.NoError(t, err)
	require.True(t, removed)
	require.NoError(t, cli.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Lookup("/w/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	dup, err := reopened.IsDuplicate(1)
	require.NoError(t, err)
	assert.False(t, dup)
	_, ok, err = reopened.Lookup("/w/c.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpen_CorruptFileReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.dat")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0644))

	_, err := Open(path)
	require.Error(t, err)
	_, err = Open(path)
	assert.NotErrorIs(t, err, ErrLocked)
}
