package watch

import (
	"context"
	"os"
	"time"

	"dupdb/internal/dupdb"
	dfs "dupdb/internal/fs"
)

// PollSource is the fallback for filesystems without change notification.
// Every interval it rescans the tree and pushes paths that appeared,
// disappeared, or whose fingerprint changed.
type PollSource struct {
	root     string
	interval time.Duration
	scanner  Scanner
	logger   dupdb.Logger
	known    map[string]dfs.Fingerprint
}

// NewPollSource creates a PollSource. The first scan only records state.
func NewPollSource(root string, interval time.Duration, scanner Scanner, logger dupdb.Logger) *PollSource {
	return &PollSource{
		root:     root,
		interval: interval,
		scanner:  scanner,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (s *PollSource) Run(ctx context.Context, push func(string)) error {
	s.known = s.snapshot()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.poll(push)
		}
	}
}

func (s *PollSource) poll(push func(string)) {
	current := s.snapshot()

	changed := 0
	for path, fp := range current {
		if prev, ok := s.known[path]; !ok || prev != fp {
			push(path)
			changed++
		}
	}
	for path := range s.known {
		if _, ok := current[path]; !ok {
			push(path)
			changed++
		}
	}
	if changed > 0 {
		s.logger.Debug("poll found changes", "paths", changed)
	}

	s.known = current
}

func (s *PollSource) snapshot() map[string]dfs.Fingerprint {
	out := make(map[string]dfs.Fingerprint)
	for path := range s.scanner.Scan(s.root) {
		info, err := os.Stat(path)
		if err != nil {
			// Vanished between listing and stat; the next poll sees it as removed.
			continue
		}
		out[path] = dfs.FingerprintOf(info)
	}
	return out
}

var _ Source = (*PollSource)(nil)
