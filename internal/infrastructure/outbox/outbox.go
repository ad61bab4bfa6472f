package outbox

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// ErrClosed is returned by Publish after Stop.
var ErrClosed = errors.New("outbox: bus stopped")

const (
	componentOutbox       = "outbox"
	defaultPartitions     = 8
	defaultQueueSize      = 1024
	defaultHandlerTimeout = 30 * time.Second
)

// Bus is an in-memory event bus partitioned by Event.PartitionKey. Each
// partition is drained by one goroutine, so events with the same key reach
// handlers in publish order while different keys proceed in parallel.
// It is not durable.
type Bus struct {
	mu             sync.RWMutex
	subs           map[string][]domoutbox.Handler
	partitions     []chan domoutbox.Event
	closed         bool
	startOnce      sync.Once
	stopOnce       sync.Once
	wg             sync.WaitGroup
	cancel         context.CancelFunc
	handlerTimeout time.Duration
	log            observability.Logger
}

type Option func(*Bus)

// WithPartitions sets the number of FIFO partitions and the queue size of each.
func WithPartitions(n, queueSize int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.partitions = make([]chan domoutbox.Event, n)
		}
		if queueSize > 0 {
			for i := range b.partitions {
				b.partitions[i] = make(chan domoutbox.Event, queueSize)
			}
		}
	}
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.handlerTimeout = d
		}
	}
}

func NewBus(logger observability.Logger, opts ...Option) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	b := &Bus{
		subs:           make(map[string][]domoutbox.Handler),
		partitions:     make([]chan domoutbox.Event, defaultPartitions),
		handlerTimeout: defaultHandlerTimeout,
		log:            logger.With(observability.F("component", componentOutbox)),
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := range b.partitions {
		if b.partitions[i] == nil {
			b.partitions[i] = make(chan domoutbox.Event, defaultQueueSize)
		}
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		for i, q := range b.partitions {
			b.wg.Add(1)
			go b.dispatchLoop(bg, i, q)
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_started",
			observability.F("partitions", len(b.partitions)),
		)
	})
}

// Stop refuses new events, lets every partition drain what is queued and
// waits for the loops to finish or ctx to expire.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, q := range b.partitions {
			close(q)
		}
		b.mu.Unlock()

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()
		logger := logctx.FromOr(ctx, b.log)
		select {
		case <-done:
			logger.Info("event_bus_stopped")
		case <-ctx.Done():
			logger.Warn("event_bus_stop_timeout", observability.F("error", ctx.Err()))
		}
		if b.cancel != nil {
			b.cancel()
		}
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	idx := b.partitionOf(e.PartitionKey())
	logger := logctx.FromOr(ctx, b.log).With(
		observability.F("event", e.EventName()),
		observability.F("partition", idx),
	)
	select {
	case b.partitions[idx] <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted",
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) partitionOf(key string) int {
	if len(b.partitions) == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.partitions)))
}

func (b *Bus) dispatchLoop(ctx context.Context, idx int, q <-chan domoutbox.Event) {
	defer b.wg.Done()
	for e := range q {
		b.fanout(ctx, idx, e)
	}
}

// fanout runs every handler of e and waits for them, so the partition's next
// event starts only after this one is fully handled.
func (b *Bus) fanout(ctx context.Context, idx int, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	baseLogger := b.log.With(
		observability.F("event", name),
		observability.F("partition", idx),
	)
	if len(handlers) == 0 {
		baseLogger.Debug("event_dropped_no_subscriber")
		return
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					baseLogger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
			defer cancel()
			hctx = logctx.With(hctx, baseLogger)
			if err := h(hctx, e); err != nil {
				baseLogger.Warn("event_handler_error",
					observability.F("error", err),
				)
			}
		}()
	}
	wg.Wait()

	baseLogger.Debug("event_fanned_out",
		observability.F("handlers", len(handlers)),
	)
}
