package gateway

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate admits one device operation at a time.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free or ctx is done.
// Waiters are admitted in FIFO order.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// TryAcquire takes the gate only if it is free right now.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}

func (g *Gate) Release() {
	g.sem.Release(1)
}

// Busy reports whether an operation holds the gate or waits for it.
// Never blocks. The answer may be stale by the time it is used; callers
// that act on it should use TryAcquire instead.
func (g *Gate) Busy() bool {
	if !g.sem.TryAcquire(1) {
		return true
	}
	g.sem.Release(1)
	return false
}
