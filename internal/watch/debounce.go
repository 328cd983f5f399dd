// Package watch turns raw filesystem events into ordered batches of paths
// for the synchronization pipeline.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"time"

	"dupdb/internal/dupdb"
)

// Batch is one debounced group of paths. Every path appears once.
type Batch struct {
	// Changed holds paths that existed as non-directories at flush time.
	Changed []string
	// Removed holds paths that no longer existed at flush time.
	Removed []string
}

// Paths yields removed paths first, then changed ones. A rename shows up as
// a removal plus a change under the same content; retiring the old path
// first keeps the move from looking like a new copy.
func (b Batch) Paths() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range b.Removed {
			if !yield(p) {
				return
			}
		}
		for _, p := range b.Changed {
			if !yield(p) {
				return
			}
		}
	}
}

// Len returns the number of paths in the batch.
func (b Batch) Len() int {
	return len(b.Changed) + len(b.Removed)
}

// DebouncerOptions configures a Debouncer.
type DebouncerOptions struct {
	// Window is the quiet period after the last event before pending paths flush.
	Window time.Duration
	// MaxWait bounds how long the first pending event can wait while events keep
	// arriving. Zero disables the bound.
	MaxWait time.Duration
	// Stat classifies paths at flush time. Defaults to os.Stat.
	Stat func(path string) (fs.FileInfo, error)
}

// Debouncer collects pushed paths and emits them as batches once events go
// quiet. All state is owned by the goroutine running Run; emitted batches
// queue without bound so a slow consumer never stalls event intake, and are
// delivered in flush order.
type Debouncer struct {
	opts   DebouncerOptions
	logger dupdb.Logger
	in     chan string
	out    chan Batch
	done   chan struct{}
}

// NewDebouncer creates a Debouncer. Call Run to start it.
func NewDebouncer(opts DebouncerOptions, logger dupdb.Logger) *Debouncer {
	if opts.Stat == nil {
		opts.Stat = os.Stat
	}
	return &Debouncer{
		opts:   opts,
		logger: logger,
		in:     make(chan string, 256),
		out:    make(chan Batch),
		done:   make(chan struct{}),
	}
}

// Push records an event for path. It never blocks once Run has returned.
func (d *Debouncer) Push(path string) {
	select {
	case d.in <- path:
	case <-d.done:
	}
}

// Batches returns the channel of flushed batches. It is closed when Run returns.
func (d *Debouncer) Batches() <-chan Batch {
	return d.out
}

// Run owns the pending set until ctx is cancelled. Paths still pending or
// queued at that point are dropped; the next scan picks them up.
func (d *Debouncer) Run(ctx context.Context) error {
	defer close(d.out)
	defer close(d.done)

	var (
		pending []string
		seen    = make(map[string]struct{})
		queue   []Batch

		quiet    *time.Timer
		quietC   <-chan time.Time
		deadline *time.Timer
		maxC     <-chan time.Time
	)
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
		if deadline != nil {
			deadline.Stop()
		}
	}()

	flush := func() {
		quietC, maxC = nil, nil
		if quiet != nil {
			quiet.Stop()
		}
		if deadline != nil {
			deadline.Stop()
		}
		if len(pending) == 0 {
			return
		}

		batch := d.classify(pending)
		pending = nil
		clear(seen)
		if batch.Len() > 0 {
			queue = append(queue, batch)
			d.logger.Debug("batch ready", "changed", len(batch.Changed), "removed", len(batch.Removed), "queued", len(queue))
		}
	}

	for {
		var (
			out  chan<- Batch
			head Batch
		)
		if len(queue) > 0 {
			out = d.out
			head = queue[0]
		}

		select {
		case <-ctx.Done():
			if n := len(pending) + len(queue); n > 0 {
				d.logger.Info("dropping pending events on shutdown", "paths", len(pending), "batches", len(queue))
			}
			return nil

		case path := <-d.in:
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				pending = append(pending, path)
			}

			if quiet == nil {
				quiet = time.NewTimer(d.opts.Window)
			} else {
				quiet.Reset(d.opts.Window)
			}
			quietC = quiet.C

			if maxC == nil && d.opts.MaxWait > 0 {
				if deadline == nil {
					deadline = time.NewTimer(d.opts.MaxWait)
				} else {
					deadline.Reset(d.opts.MaxWait)
				}
				maxC = deadline.C
			}

		case <-quietC:
			flush()

		case <-maxC:
			d.logger.Debug("flushing on max wait", "paths", len(pending))
			flush()

		case out <- head:
			queue[0] = Batch{}
			queue = queue[1:]
		}
	}
}

// classify stats every pending path once. Directories are dropped: their
// contents arrive as events of their own.
func (d *Debouncer) classify(paths []string) Batch {
	var b Batch
	for _, p := range paths {
		info, err := d.opts.Stat(p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			b.Removed = append(b.Removed, p)
		case err != nil:
			// Let the pipeline retry the stat and report it.
			b.Changed = append(b.Changed, p)
		case info.IsDir():
		default:
			b.Changed = append(b.Changed, p)
		}
	}
	return b
}
