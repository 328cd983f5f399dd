package dupdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"time"
)

// DefaultNotifyTimeout bounds a single notification so a stalled backend
// cannot hold up the next batch.
const DefaultNotifyTimeout = 5 * time.Second

// PipelineOptions tunes which files the pipeline considers.
type PipelineOptions struct {
	// RequireExtension skips regular files whose name has no extension.
	RequireExtension bool
	// NotifyTimeout bounds each Notify call. Zero means DefaultNotifyTimeout.
	NotifyTimeout time.Duration
}

// Pipeline applies batches of changed or removed paths to the index and
// raises one notification per batch for paths that newly became duplicates.
//
// A Pipeline is not safe for concurrent use: the goroutine calling Process
// is the index's only writer.
type Pipeline struct {
	index    Index
	history  History
	fsmgr    FilesystemManager
	notifier Notifier
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	opts     PipelineOptions
}

// NewPipeline creates a Pipeline. history and notifier may be nil.
func NewPipeline(index Index, history History, fsmgr FilesystemManager, notifier Notifier, logger Logger, clock Clock, idgen IDGenerator, opts PipelineOptions) *Pipeline {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	return &Pipeline{
		index:    index,
		history:  history,
		fsmgr:    fsmgr,
		notifier: notifier,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts,
	}
}

// Process runs one batch. trigger names the source of the batch ("scan" or
// "watch") for the run history. Paths are consumed lazily, so a full scan can
// be passed in as a single batch.
//
// Per-path failures are logged and counted; they never abort the batch. The
// returned error is non-nil only when the index could not be flushed or ctx
// was cancelled part way through; the run summary is returned either way.
func (p *Pipeline) Process(ctx context.Context, trigger string, paths iter.Seq[string]) (*Run, error) {
	run := &Run{
		ID:        p.idgen.New(),
		Trigger:   trigger,
		StartedAt: p.clock.Now(),
	}
	acc := newDuplicateAccumulator()

	for raw := range paths {
		if ctx.Err() != nil {
			break
		}
		run.Processed++
		p.processPath(raw, run, acc)
	}

	run.NewDuplicates = acc.paths
	run.Duplicates = len(acc.paths)
	if len(acc.paths) > 0 {
		p.notify(ctx, acc.paths)
	}

	var err error
	if run.Dirty {
		if ferr := p.index.Flush(); ferr != nil {
			p.logger.Error("flushing index failed", "error", ferr)
			err = fmt.Errorf("flushing index: %w", ferr)
		}
	}

	run.FinishedAt = p.clock.Now()
	// Batches made only of skipped paths (the index's own files, say) leave no trace.
	if p.history != nil && run.Processed > run.Skipped {
		if herr := p.history.RecordRun(run); herr != nil {
			p.logger.Warn("recording run failed", "run", run.ID, "error", herr)
		}
	}

	p.logger.Info("run complete",
		"run", run.ID,
		"trigger", trigger,
		"processed", run.Processed,
		"updated", run.Updated,
		"removed", run.Removed,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"duplicates", run.Duplicates,
	)

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return run, err
}

// processPath applies a single path to the index.
func (p *Pipeline) processPath(raw string, run *Run, acc *duplicateAccumulator) {
	path, err := p.fsmgr.Canonicalize(raw)
	if err != nil {
		p.logger.Warn("cannot canonicalize path", "path", raw, "error", err)
		run.Failed++
		return
	}

	if p.fsmgr.IsIgnored(path) {
		run.Skipped++
		return
	}

	info, err := p.fsmgr.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.removePath(path, run)
		return
	}
	if err != nil {
		p.logger.Warn("cannot stat path", "path", path, "error", err)
		run.Failed++
		return
	}

	// Only regular files carry content we can compare.
	if info.IsDir() || !info.Mode().IsRegular() {
		run.Skipped++
		return
	}
	if p.opts.RequireExtension && filepath.Ext(path) == "" {
		run.Skipped++
		return
	}

	hash, err := p.fsmgr.Hash(path)
	if err != nil {
		// Not retried: the path is seen again only if it changes again.
		p.logger.Warn("cannot read file", "path", path, "error", err)
		run.Failed++
		return
	}

	prev, known, err := p.index.Lookup(path)
	if err != nil {
		p.logger.Error("index lookup failed", "path", path, "error", err)
		run.Failed++
		return
	}

	if err := p.index.Upsert(hash, path); err != nil {
		p.logger.Error("index upsert failed", "path", path, "hash", hash.Hex(), "error", err)
		run.Failed++
		return
	}
	run.Updated++
	run.Dirty = true

	dup, err := p.index.IsDuplicate(hash)
	if err != nil {
		p.logger.Error("duplicate check failed", "path", path, "hash", hash.Hex(), "error", err)
		return
	}
	if !dup {
		return
	}

	// A path re-saved with the same content was already part of this set.
	if known && prev == hash {
		p.logger.Debug("known duplicate unchanged", "path", path, "hash", hash.Hex())
		return
	}

	p.logger.Info("duplicate detected", "path", path, "hash", hash.Hex())
	acc.add(path)
}

// removePath forgets a path that no longer exists. When the path was a
// directory, everything indexed below it goes too.
func (p *Pipeline) removePath(path string, run *Run) {
	removed, err := p.index.Remove(path)
	if err != nil {
		p.logger.Error("index remove failed", "path", path, "error", err)
		run.Failed++
		return
	}

	below, err := p.index.RemoveTree(path)
	if err != nil {
		p.logger.Error("index remove tree failed", "path", path, "error", err)
		run.Failed++
	}

	if !removed && below == 0 {
		p.logger.Debug("removed path was not indexed", "path", path)
		return
	}
	if removed {
		run.Removed++
	}
	run.Removed += below
	run.Dirty = true
}

// notify sends the run's single alert. The notification gets its own deadline
// and survives cancellation of the batch context.
func (p *Pipeline) notify(ctx context.Context, paths []string) {
	if p.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.NotifyTimeout)
	defer cancel()

	if err := p.notifier.Notify(nctx, paths); err != nil {
		p.logger.Warn("could not send duplicate notification", "count", len(paths), "error", err)
	}
}

// duplicateAccumulator keeps first-seen order and drops repeats.
type duplicateAccumulator struct {
	seen  map[string]struct{}
	paths []string
}

func newDuplicateAccumulator() *duplicateAccumulator {
	return &duplicateAccumulator{seen: make(map[string]struct{})}
}

func (a *duplicateAccumulator) add(path string) {
	if _, ok := a.seen[path]; ok {
		return
	}
	a.seen[path] = struct{}{}
	a.paths = append(a.paths, path)
}
