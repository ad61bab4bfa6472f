// Package keylock provides per-key mutual exclusion with bounded waits.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a key could not be acquired before the wait bound.
var ErrTimeout = errors.New("keylock: timed out waiting for key")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out one exclusive holder per key. Idle keys are dropped.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

// New creates a Locker whose Lock calls give up after wait (0 waits for ctx only).
func New(wait time.Duration) *Locker {
	return &Locker{
		entries: make(map[string]*entry),
		wait:    wait,
	}
}

// Lock blocks until key is free, ctx is done or the wait bound elapses.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	acquireCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		l.release(key, e, false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *Locker) release(key string, e *entry, held bool) {
	if held {
		e.sem.Release(1)
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}
