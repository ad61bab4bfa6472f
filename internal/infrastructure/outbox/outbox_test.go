package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type testEvent struct {
	key string
	seq int
}

func (testEvent) EventName() string      { return "test.event" }
func (e testEvent) PartitionKey() string { return e.key }

func TestBusPreservesOrderPerPartitionKey(t *testing.T) {
	t.Parallel()

	bus := NewBus(observability.NopLogger(), WithPartitions(4, 16))
	var (
		mu   sync.Mutex
		seen = make(map[string][]int)
	)
	bus.Subscribe("test.event", func(ctx context.Context, e domoutbox.Event) error {
		te := e.(testEvent)
		// Jitter makes reordering visible if the partition were not FIFO.
		time.Sleep(time.Duration(te.seq%3) * time.Millisecond)
		mu.Lock()
		seen[te.key] = append(seen[te.key], te.seq)
		mu.Unlock()
		return nil
	})
	bus.Start(context.Background())

	keys := []string{"o-1", "o-2", "o-3", "o-4", "o-5"}
	for seq := 0; seq < 20; seq++ {
		for _, k := range keys {
			if err := bus.Publish(context.Background(), testEvent{key: k, seq: seq}); err != nil {
				t.Fatalf("publish: %v", err)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	for _, k := range keys {
		got := seen[k]
		if len(got) != 20 {
			t.Fatalf("%s: got %d events", k, len(got))
		}
		for i, seq := range got {
			if seq != i {
				t.Fatalf("%s: out of order at %d: %v", k, i, got)
			}
		}
	}
}

func TestBusRecoversFromHandlerPanicAndError(t *testing.T) {
	t.Parallel()

	bus := NewBus(observability.NopLogger(), WithPartitions(1, 4))
	var calls atomic.Int32
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		panic("boom")
	})
	bus.Subscribe("test.event", func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		return errors.New("handler failed")
	})
	bus.Start(context.Background())

	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), testEvent{key: "k", seq: i}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	bus.Stop(context.Background())

	if got := calls.Load(); got != 6 {
		t.Fatalf("calls = %d, want 6", got)
	}
}

func TestBusPublishAfterStop(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil)
	bus.Start(context.Background())
	bus.Stop(context.Background())

	if err := bus.Publish(context.Background(), testEvent{key: "k"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after stop: %v", err)
	}
}

func TestBusPublishHonoursContextWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, WithPartitions(1, 1))
	// Not started: the single slot fills and the next publish must give up.
	if err := bus.Publish(context.Background(), testEvent{key: "k"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Publish(ctx, testEvent{key: "k"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second publish: %v", err)
	}
}

func TestPartitionOfIsStable(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, WithPartitions(8, 1))
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("order-%d", i)
		if bus.partitionOf(key) != bus.partitionOf(key) {
			t.Fatalf("partition of %s not stable", key)
		}
	}
}

func TestBusBoundsHandlerTime(t *testing.T) {
	t.Parallel()

	bus := NewBus(nil, WithPartitions(1, 4), WithHandlerTimeout(20*time.Millisecond))
	expired := make(chan error, 1)
	bus.Subscribe("test.event", func(ctx context.Context, e domoutbox.Event) error {
		<-ctx.Done()
		expired <- ctx.Err()
		return ctx.Err()
	})
	bus.Start(context.Background())
	if err := bus.Publish(context.Background(), testEvent{key: "o-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-expired:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("handler ctx err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler context never expired")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	bus.Stop(ctx)
}
