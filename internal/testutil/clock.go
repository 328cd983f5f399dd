package testutil

import (
	"fmt"
	"sync"
	"time"
)

// Epoch is where every stub clock starts: 2024-01-15 10:30:00 UTC.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock stamps runs and snapshot versions in tests. Each reading moves
// it forward by step, so a run's FinishedAt lands after its StartedAt.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// FixedClock never moves.
func FixedClock() *StubClock {
	return &StubClock{now: Epoch}
}

// TickingClock advances by step after every reading.
func TickingClock(step time.Duration) *StubClock {
	return &StubClock{now: Epoch, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// RunIDs names runs "run-1", "run-2", ... in the order they start.
type RunIDs struct {
	mu sync.Mutex
	n  int
}

func NewRunIDs() *RunIDs {
	return &RunIDs{}
}

func (g *RunIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}
