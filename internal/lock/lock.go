// Package lock provides a mutex whose acquisition can time out.
//
// Control tasks never block indefinitely on shared state: a task that
// cannot take a lock within its budget skips the work for that period and
// tries again on the next one.
package lock

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Timed is a mutual-exclusion lock with bounded acquisition.
// The zero value is not usable; construct with New.
type Timed struct {
	sem *semaphore.Weighted
}

func New() *Timed {
	return &Timed{sem: semaphore.NewWeighted(1)}
}

// TryLock acquires the lock, waiting at most timeout. A non-positive
// timeout makes a single non-blocking attempt.
func (m *Timed) TryLock(timeout time.Duration) bool {
	if timeout <= 0 {
		return m.sem.TryAcquire(1)
	}
	if m.sem.TryAcquire(1) {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.sem.Acquire(ctx, 1) == nil
}

// Lock blocks until the lock is held.
func (m *Timed) Lock() {
	_ = m.sem.Acquire(context.Background(), 1)
}

func (m *Timed) Unlock() {
	m.sem.Release(1)
}
