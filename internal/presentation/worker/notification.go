package workerpresentation

import (
	"context"
	"fmt"

	appnotif "github.com/Zhima-Mochi/minishop-orders/internal/application/notification"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type Dispatcher interface {
	Execute(ctx context.Context, e domoutbox.Event) (*appnotif.DispatchResult, error)
}

// NotificationWorker feeds committed order and payment events to the dispatcher.
type NotificationWorker struct {
	dispatcher Dispatcher
	subscriber domoutbox.Subscriber
	log        observability.Logger
}

func NewNotificationWorker(d Dispatcher, sub domoutbox.Subscriber, tel observability.Observability) *NotificationWorker {
	_, logger, _ := observability.Resolve(tel)
	return &NotificationWorker{
		dispatcher: d,
		subscriber: sub,
		log:        logger.With(observability.F("worker", "notification")),
	}
}

// Start registers the handlers. It must run before the bus starts.
func (w *NotificationWorker) Start() {
	if w.subscriber == nil || w.dispatcher == nil {
		return
	}
	w.subscriber.Subscribe(domorder.PlacedEvent{}.EventName(), w.handle)
	w.subscriber.Subscribe(domorder.TransitionCommittedEvent{}.EventName(), w.handle)
	w.subscriber.Subscribe(dompay.ProofSubmittedEvent{}.EventName(), w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, e domoutbox.Event) error {
	ctx = WithEventContext(ctx, w.log, e, nil)
	if _, err := w.dispatcher.Execute(ctx, e); err != nil {
		w.log.Error("notification_plan_failed",
			observability.F("event", e.EventName()),
			observability.F("order_id", e.PartitionKey()),
			observability.F("error", err.Error()),
		)
		return fmt.Errorf("notification worker: %w", err)
	}
	return nil
}
