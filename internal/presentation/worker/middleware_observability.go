package workerpresentation

import (
	"context"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext binds a logger for one bus delivery. It carries the event
// name, the order it belongs to, a delivery id and the trace ids when a span
// is active. attrs must stay low-cardinality.
func WithEventContext(ctx context.Context, base observability.Logger, e domoutbox.Event, attrs map[string]string) context.Context {
	if base == nil {
		base = logctx.FromOr(ctx, observability.NopLogger())
	}

	fields := make([]observability.Field, 0, 5+len(attrs))
	deliveryID := attrs["delivery_id"]
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	fields = append(fields,
		observability.F("delivery_id", deliveryID),
		observability.F("event", e.EventName()),
		observability.F("order_id", e.PartitionKey()),
	)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}

	for k, v := range attrs {
		if k == "delivery_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}
	return logctx.With(ctx, base.With(fields...))
}
