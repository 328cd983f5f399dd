package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"dupdb/internal/blobindex"
	"dupdb/internal/config"
	"dupdb/internal/database"
	"dupdb/internal/dupdb"
	"dupdb/internal/encryption"
	"dupdb/internal/fs"
	"dupdb/internal/notify"
	"dupdb/internal/vault"
	"dupdb/internal/watch"
)

// Options adjusts how a DupApp is built for one CLI invocation.
type Options struct {
	// Root overrides watch.root from the config.
	Root string
	// Verbose lowers the log threshold to debug.
	Verbose bool
	// Console receives log output besides the log file. Defaults to os.Stderr.
	Console io.Writer
}

// DupApp is the application layer between the CLI and the dupdb core.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and releases the store and log on Close.
type DupApp struct {
	cfg       *config.Config
	store     dupdb.Store
	fsmgr     *fs.OSFilesystemManager
	notifier  dupdb.Notifier
	vault     dupdb.Vault
	encryptor dupdb.Encryptor
	pipeline  *dupdb.Pipeline
	service   *dupdb.Service
	logger    dupdb.Logger
	logFile   *os.File
}

// NewDupApp creates a fully wired DupApp from the given config.
// The caller must call Close when done.
func NewDupApp(cfg *config.Config, opts Options) (*DupApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	root := opts.Root
	if root == "" {
		root = cfg.Watch.Root
	}
	if root == "" {
		return nil, fmt.Errorf("no directory to watch: set watch.root or pass one")
	}
	if opts.Console == nil {
		opts.Console = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	session := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, session, level, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &DupApp{cfg: cfg, logger: logger, logFile: logFile}
	if err := a.wire(root); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *DupApp) wire(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root is not a directory: %s", root)
	}

	fsmgr, err := fs.NewOSFilesystemManager(root, a.cfg.Watch.Ignore, a.logger)
	if err != nil {
		return fmt.Errorf("creating filesystem manager: %w", err)
	}
	// The index and log must never index themselves.
	for _, dir := range []string{a.cfg.Index.DataDir, a.cfg.LogDir} {
		if dir == "" {
			continue
		}
		if err := fsmgr.ExcludeTree(dir); err != nil {
			return err
		}
	}
	a.fsmgr = fsmgr

	store, err := database.NewStoreFromConfig(a.cfg.Index)
	if errors.Is(err, blobindex.ErrLocked) {
		return fmt.Errorf("opening index: %w (stop 'dupdb watch' first, or use the sqlite index)", err)
	}
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	a.store = store

	notifier, err := notify.NewNotifierFromConfig(a.cfg.Notify, a.logger)
	if err != nil {
		return fmt.Errorf("creating notifier: %w", err)
	}
	a.notifier = notifier

	if len(a.cfg.Vaults) > 0 {
		v, err := vault.NewVaultFromConfig(a.cfg.Vaults[0])
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	requireExt := a.cfg.Watch.RequireExtension == nil || *a.cfg.Watch.RequireExtension
	a.pipeline = dupdb.NewPipeline(store, store, fsmgr, notifier, a.logger, dupdb.RealClock{}, dupdb.UUIDGenerator{},
		dupdb.PipelineOptions{
			RequireExtension: requireExt,
			NotifyTimeout:    a.cfg.Notify.Timeout.Duration,
		})

	a.service = dupdb.NewService(store, fsmgr, a.vault, enc, a.logger, dupdb.RealClock{}, a.cfg.HostID)
	return nil
}

// Root returns the canonical directory being kept in sync.
func (a *DupApp) Root() string {
	return a.fsmgr.Root()
}

// Scan resets the index and rebuilds it from a full traversal of the root.
// When progress is non-nil a spinner with a running count is drawn on it.
func (a *DupApp) Scan(ctx context.Context, progress io.Writer) (*dupdb.Run, error) {
	if err := a.store.Reset(); err != nil {
		return nil, fmt.Errorf("resetting index: %w", err)
	}
	paths := a.fsmgr.Scan(a.Root())
	if progress != nil {
		bar := newScanBar(progress)
		defer bar.Finish()
		paths = counted(paths, bar)
	}
	return a.pipeline.Process(ctx, "scan", paths)
}

// Watch keeps the index in sync with the root until ctx is cancelled. An
// empty index, or rescan, triggers a full scan before events are applied;
// events arriving during the scan queue up in the debouncer.
func (a *DupApp) Watch(ctx context.Context, rescan bool) error {
	count, err := a.store.Count()
	if err != nil {
		return fmt.Errorf("counting index entries: %w", err)
	}

	source, err := a.newSource()
	if err != nil {
		return err
	}
	deb := watch.NewDebouncer(watch.DebouncerOptions{
		Window:  a.cfg.Watch.Debounce.Duration,
		MaxWait: a.cfg.Watch.MaxWait.Duration,
		Stat:    a.fsmgr.Stat,
	}, a.logger)

	a.logger.Info("watching", "root", a.Root(), "mode", a.cfg.Watch.Mode, "indexed", count)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Run(gctx, deb.Push)
	})
	g.Go(func() error {
		return deb.Run(gctx)
	})
	g.Go(func() error {
		if rescan || count == 0 {
			if rescan {
				if err := a.store.Reset(); err != nil {
					return fmt.Errorf("resetting index: %w", err)
				}
			}
			if _, err := a.pipeline.Process(gctx, "scan", a.fsmgr.Scan(a.Root())); err != nil && !isCancel(err) {
				return err
			}
		}
		for batch := range deb.Batches() {
			if _, err := a.pipeline.Process(gctx, "watch", batch.Paths()); err != nil && !isCancel(err) {
				// A flush failure leaves the next batch to retry the write.
				a.logger.Error("batch failed", "paths", batch.Len(), "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !isCancel(err) {
		return err
	}
	a.logger.Info("watch stopped", "root", a.Root())
	return nil
}

func (a *DupApp) newSource() (watch.Source, error) {
	switch a.cfg.Watch.Mode {
	case "poll":
		return watch.NewPollSource(a.Root(), a.cfg.Watch.PollInterval.Duration, a.fsmgr, a.logger), nil
	default:
		src, err := watch.NewNotifySource(a.Root(), a.fsmgr, a.fsmgr.IsIgnored, a.logger)
		if err != nil {
			return nil, fmt.Errorf("starting watcher: %w", err)
		}
		return src, nil
	}
}

// Show returns what the index knows about one path.
func (a *DupApp) Show(rawPath string) (*dupdb.PathInfo, error) {
	return a.service.Show(rawPath)
}

// DuplicateSets returns every set of paths sharing content.
func (a *DupApp) DuplicateSets() ([]dupdb.DuplicateSet, error) {
	return a.service.DuplicateSets()
}

// Status summarizes the index.
func (a *DupApp) Status() (*dupdb.Status, error) {
	return a.service.Status()
}

// Forget removes a path from the index, deleting the file too unless keepFile.
func (a *DupApp) Forget(rawPath string, keepFile bool) (int, error) {
	return a.service.Forget(rawPath, !keepFile)
}

// History returns the most recent pipeline runs.
func (a *DupApp) History(limit int) ([]*dupdb.Run, error) {
	return a.service.History(limit)
}

// PushSnapshot stores an encrypted copy of the index in the first vault.
func (a *DupApp) PushSnapshot() (int64, error) {
	if !a.encryptor.IsConfigured() {
		return 0, fmt.Errorf("encryption keys not found: run 'dupdb keys init' first")
	}
	return a.service.PushSnapshot()
}

// PullSnapshot fetches the latest snapshot into destPath, unlocking the
// private key with passphrase.
func (a *DupApp) PullSnapshot(destPath string, passphrase string) (int64, error) {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}
	abs, err := filepath.Abs(destPath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.PullSnapshot(abs, dc)
}

// Close flushes and closes the store and the log file.
func (a *DupApp) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing index: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func newScanBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

// counted advances bar for every path pulled from paths.
func counted(paths iter.Seq[string], bar *progressbar.ProgressBar) iter.Seq[string] {
	return func(yield func(string) bool) {
		for p := range paths {
			_ = bar.Add(1)
			if !yield(p) {
				return
			}
		}
	}
}

// InitKeys generates the snapshot encryption key pair.
func InitKeys(cfg *config.Config, passphrase string) (string, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return "", err
	}
	if err := enc.Setup(passphrase); err != nil {
		return "", err
	}
	if age, ok := enc.(*encryption.AgeEncryptor); ok {
		return age.PublicKey()
	}
	return "", nil
}
