package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	t.Parallel()

	l := New(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "order-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxInside)
	}
}

func TestLockTimesOut(t *testing.T) {
	t.Parallel()

	l := New(20 * time.Millisecond)
	unlock, err := l.Lock(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer unlock()

	_, err = l.Lock(context.Background(), "order-1")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	t.Parallel()

	l := New(20 * time.Millisecond)
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	unlockB, err := l.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("lock b while a held: %v", err)
	}
	unlockB()
}

func TestIdleKeysAreDropped(t *testing.T) {
	t.Parallel()

	l := New(time.Second)
	for _, key := range []string{"a", "b"} {
		unlock, err := l.Lock(context.Background(), key)
		if err != nil {
			t.Fatalf("lock %s: %v", key, err)
		}
		unlock()
		unlock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) != 0 {
		t.Fatalf("expected no retained entries, got %d", len(l.entries))
	}
}
