package workerpresentation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	appnotif "github.com/Zhima-Mochi/minishop-orders/internal/application/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

type registry struct {
	handlers map[string]domoutbox.Handler
}

func (r *registry) Subscribe(name string, h domoutbox.Handler) {
	if r.handlers == nil {
		r.handlers = make(map[string]domoutbox.Handler)
	}
	r.handlers[name] = h
}

type dispatcher struct {
	mu         sync.Mutex
	seen       []string
	withLogger bool
	err        error
}

func (d *dispatcher) Execute(ctx context.Context, e domoutbox.Event) (*appnotif.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, e.EventName())
	d.withLogger = logctx.From(ctx) != nil
	return &appnotif.DispatchResult{}, d.err
}

func TestNotificationWorkerSubscribes(t *testing.T) {
	t.Parallel()

	reg := &registry{}
	NewNotificationWorker(&dispatcher{}, reg, nil).Start()

	var names []string
	for name := range reg.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	want := []string{"order.placed", "order.transition_committed", "payment.proof_submitted"}
	if !slices.Equal(names, want) {
		t.Fatalf("subscriptions = %v, want %v", names, want)
	}
}

func TestNotificationWorkerHandle(t *testing.T) {
	t.Parallel()

	reg := &registry{}
	d := &dispatcher{}
	NewNotificationWorker(d, reg, nil).Start()

	evt := domorder.PlacedEvent{OrderID: "o-1", OccurredAt: time.Now()}
	if err := reg.handlers[evt.EventName()](context.Background(), evt); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !slices.Equal(d.seen, []string{"order.placed"}) || !d.withLogger {
		t.Fatalf("dispatcher saw %v, logger bound = %v", d.seen, d.withLogger)
	}

	d.err = errors.New("directory down")
	if err := reg.handlers[evt.EventName()](context.Background(), evt); err == nil {
		t.Fatal("expected planning error to surface to the bus")
	}
}

func TestWithEventContextKeepsDeliveryID(t *testing.T) {
	t.Parallel()

	ctx := WithEventContext(context.Background(), nil, domorder.PlacedEvent{OrderID: "o-1"}, map[string]string{"delivery_id": "d-1"})
	if logctx.From(ctx) == nil {
		t.Fatal("expected a bound logger")
	}
}
