package notification

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domnotif "github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	notificationService = "notification-service"
	useCaseDispatch     = "notification.dispatch"
	defaultConcurrency  = 8
)

type DispatchResult struct {
	Event     domnotif.Event
	Delivered int
	Skipped   int
	Failed    int
}

// Dispatcher fans one event out to its targets. Delivery failures end in
// logs and metrics; they never flow back to whoever changed the order.
type Dispatcher struct {
	planner     *Planner
	senders     map[domnotif.Channel]domnotif.Sender
	concurrency int
	ins         application.Instrument
	failures    observability.Counter // notification_delivery_failed_total{channel,event}
}

// NewDispatcher wraps persistent-class senders in a RetryingSender using policy.
func NewDispatcher(
	planner *Planner,
	senders map[domnotif.Channel]domnotif.Sender,
	policy domnotif.RetryPolicy,
	tel observability.Observability,
) *Dispatcher {
	_, _, metrics := observability.Resolve(tel)
	wrapped := make(map[domnotif.Channel]domnotif.Sender, len(senders))
	for ch, s := range senders {
		if s == nil {
			continue
		}
		if ch.Class() == domnotif.ClassPersistent {
			s = NewRetryingSender(s, policy)
		}
		wrapped[ch] = s
	}
	return &Dispatcher{
		planner:     planner,
		senders:     wrapped,
		concurrency: defaultConcurrency,
		ins:         application.NewInstrument(tel, notificationService),
		failures:    metrics.Counter(observability.MNotificationFailures),
	}
}

// Execute plans and delivers the notification for one bus event. The
// returned error covers planning only.
func (d *Dispatcher) Execute(ctx context.Context, e domoutbox.Event) (_ *DispatchResult, err error) {
	ctx, call := d.ins.Start(ctx, useCaseDispatch, "DispatchNotification",
		attribute.String("event", e.EventName()),
		attribute.String("order.id", e.PartitionKey()),
	)
	defer func() { call.End(ctx, err) }()
	call.Field("order_id", e.PartitionKey())

	evt, ok, err := d.planner.Plan(ctx, e)
	if err != nil {
		call.Fail("PLAN_FAILED")
		return nil, err
	}
	if !ok {
		call.SetStatus("NOTHING_TO_SEND")
		return &DispatchResult{}, nil
	}
	res := d.Deliver(ctx, call, evt)
	call.Field("notification_type", string(evt.Type))
	call.Field("delivered", res.Delivered)
	call.Field("skipped", res.Skipped)
	call.Field("failed", res.Failed)
	if res.Failed > 0 {
		call.SetStatus("PARTIAL_DELIVERY")
	}
	return res, nil
}

// Deliver sends evt to every target concurrently and waits for all of them.
func (d *Dispatcher) Deliver(ctx context.Context, call *application.Call, evt domnotif.Event) *DispatchResult {
	res := &DispatchResult{Event: evt}
	var mu sync.Mutex
	tally := func(delivered, skipped, failed int) {
		mu.Lock()
		res.Delivered += delivered
		res.Skipped += skipped
		res.Failed += failed
		mu.Unlock()
	}

	logger := call.Logger().With(
		observability.F("notification_id", evt.ID),
		observability.F("notification_type", string(evt.Type)),
	)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, target := range evt.Targets {
		g.Go(func() error {
			fields := []observability.Field{
				observability.F("channel", string(target.Channel)),
				observability.F("recipient_id", target.Recipient.ID),
				observability.F("recipient_role", string(target.Recipient.Role)),
			}
			sender, ok := d.senders[target.Channel]
			if !ok {
				logger.Warn("notification_channel_unavailable", fields...)
				tally(0, 1, 0)
				return nil
			}

			msg := evt.MessageFor(target.Recipient)
			var (
				result   domnotif.DeliveryResult
				attempts = 1
			)
			if rs, ok := sender.(*RetryingSender); ok {
				result, attempts = rs.SendCounting(ctx, target.Channel, target.Recipient, msg)
			} else {
				result = sender.Send(ctx, target.Channel, target.Recipient, msg)
			}
			fields = append(fields, observability.F("attempts", attempts))

			switch {
			case result.OK:
				logger.Debug("notification_delivered", fields...)
				tally(1, 0, 0)
			case result.Err == nil:
				logger.Debug("notification_skipped", fields...)
				tally(0, 1, 0)
			case target.Channel.Class() == domnotif.ClassBestEffort:
				logger.Warn("notification_live_missed", append(fields, observability.F("error", result.Err.Error()))...)
				tally(0, 1, 0)
			default:
				d.failures.Add(1,
					observability.L("channel", string(target.Channel)),
					observability.L("event", string(evt.Type)),
				)
				logger.Error("notification_delivery_failed", append(fields,
					observability.F("code", string(apperr.CodeNotificationDeliveryFailure)),
					observability.F("retryable", result.Retryable),
					observability.F("error", result.Err.Error()),
				)...)
				tally(0, 0, 1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return res
}
