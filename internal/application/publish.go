package application

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	publishPeer    = "outbox"
	PublishTimeout = 300 * time.Millisecond
)

// EventPublisher hands committed events to the bus. Failures are recorded
// and logged but never returned: the mutation they describe already committed.
type EventPublisher struct {
	pub     domoutbox.Publisher
	timeout time.Duration

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
	failures     observability.Counter   // order_event_publish_failed_total{event}
}

func NewEventPublisher(pub domoutbox.Publisher, tel observability.Observability) EventPublisher {
	_, _, metrics := observability.Resolve(tel)
	return EventPublisher{
		pub:          pub,
		timeout:      PublishTimeout,
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
		failures:     metrics.Counter(observability.MEventPublishFailures),
	}
}

// Publish enqueues e with a bounded wait detached from the caller's cancellation.
func (p EventPublisher) Publish(ctx context.Context, call *Call, e domoutbox.Event) {
	if p.pub == nil || e == nil {
		return
	}
	name := e.EventName()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := p.pub.Publish(pubCtx, e)
	if err != nil {
		outcome = "error"
		if pubCtx.Err() != nil {
			outcome = "canceled"
		}
		p.failures.Add(1, observability.L("event", name))
		if call != nil {
			call.SetStatus("EVENT_PUBLISH_FAILED")
			call.Span().RecordError(err)
			call.Logger().Warn("event_publish_failed",
				observability.F("event", name),
				observability.F("partition_key", e.PartitionKey()),
				observability.F("error", err.Error()),
			)
		}
	} else if call != nil {
		call.Span().AddEvent(name, trace.WithAttributes(attribute.String("order.id", e.PartitionKey())))
	}

	p.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
		observability.L("outcome", outcome),
	)
	p.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", name),
	)
}
