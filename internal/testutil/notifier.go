package testutil

import (
	"context"
	"slices"
	"sync"
)

// RecordingNotifier keeps every alert it is asked to show. Set Err to make
// Notify fail after recording.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
	Err   error
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(_ context.Context, paths []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, slices.Clone(paths))
	return n.Err
}

// Calls returns a copy of the recorded path lists, one per Notify call.
func (n *RecordingNotifier) Calls() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.calls)
}
