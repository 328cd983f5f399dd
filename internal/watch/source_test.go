package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dupdb/internal/dupdb"
	dfs "dupdb/internal/fs"
)

// recorder collects pushed paths from a source goroutine.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) push(p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, p)
}

func (r *recorder) has(p string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.paths, p)
}

func (r *recorder) count(p string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, q := range r.paths {
		if q == p {
			n++
		}
	}
	return n
}

func runSource(t *testing.T, src Source) *recorder {
	t.Helper()

	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, rec.push) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return rec
}

func newManager(t *testing.T, root string, patterns ...string) *dfs.OSFilesystemManager {
	t.Helper()
	m, err := dfs.NewOSFilesystemManager(root, patterns, dupdb.NewNopLogger())
	require.NoError(t, err)
	return m
}

func TestNotifySource_PushesFileEvents(t *testing.T) {
	m := newManager(t, t.TempDir(), ".dupdb")
	root := m.Root()
	require.NoError(t, os.Mkdir(filepath.Join(root, "existing"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".dupdb"), 0755))

	src, err := NewNotifySource(root, m, m.IsIgnored, dupdb.NewNopLogger())
	require.NoError(t, err)
	assert.Contains(t, src.WatchList(), filepath.Join(root, "existing"))
	assert.NotContains(t, src.WatchList(), filepath.Join(root, ".dupdb"))

	rec := runSource(t, src)

	top := touch(t, filepath.Join(root, "a.txt"))
	nested := touch(t, filepath.Join(root, "existing", "b.txt"))
	touch(t, filepath.Join(root, ".dupdb", "state.db"))

	require.Eventually(t, func() bool { return rec.has(top) && rec.has(nested) },
		2*time.Second, 10*time.Millisecond)

	// Let trailing write events for top arrive before counting.
	time.Sleep(50 * time.Millisecond)
	before := rec.count(top)
	require.NoError(t, os.Remove(top))
	require.Eventually(t, func() bool { return rec.count(top) > before },
		2*time.Second, 10*time.Millisecond)

	assert.False(t, rec.has(filepath.Join(root, ".dupdb", "state.db")), "ignored paths are not pushed")
}

func TestNotifySource_WatchesNewDirectories(t *testing.T) {
	m := newManager(t, t.TempDir())
	root := m.Root()

	src, err := NewNotifySource(root, m, m.IsIgnored, dupdb.NewNopLogger())
	require.NoError(t, err)
	rec := runSource(t, src)

	// Build the tree elsewhere and move it in so its files predate the watch.
	staging := t.TempDir()
	touch(t, filepath.Join(staging, "album", "x.jpg"))
	require.NoError(t, os.Rename(filepath.Join(staging, "album"), filepath.Join(root, "album")))

	moved := filepath.Join(root, "album", "x.jpg")
	require.Eventually(t, func() bool { return rec.has(moved) }, 2*time.Second, 10*time.Millisecond)

	later := touch(t, filepath.Join(root, "album", "y.jpg"))
	require.Eventually(t, func() bool { return rec.has(later) }, 2*time.Second, 10*time.Millisecond)
}

func TestNewNotifySource_MissingRoot(t *testing.T) {
	m := newManager(t, t.TempDir())
	_, err := NewNotifySource(filepath.Join(m.Root(), "nope"), m, m.IsIgnored, dupdb.NewNopLogger())
	assert.Error(t, err)
}

func TestPollSource_DetectsChanges(t *testing.T) {
	m := newManager(t, t.TempDir())
	root := m.Root()
	unchanged := touch(t, filepath.Join(root, "same.txt"))
	edited := touch(t, filepath.Join(root, "edit.txt"))
	deleted := touch(t, filepath.Join(root, "gone.txt"))

	src := NewPollSource(root, 20*time.Millisecond, m, dupdb.NewNopLogger())
	rec := runSource(t, src)

	// Give the initial snapshot time to settle before mutating.
	time.Sleep(60 * time.Millisecond)

	created := touch(t, filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, os.WriteFile(edited, []byte("a much longer body than before"), 0644))
	require.NoError(t, os.Remove(deleted))

	require.Eventually(t, func() bool {
		return rec.has(created) && rec.has(edited) && rec.has(deleted)
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, rec.has(unchanged))
}
