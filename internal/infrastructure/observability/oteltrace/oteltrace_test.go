package oteltrace

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracerRecordsAttributes(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tr := NewFromProvider(tp, "")
	_, span := tr.Start(context.Background(), "UC.ApprovePayment", attribute.String("order.id", "o-1"))
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("spans = %d", len(ended))
	}
	if ended[0].Name() != "UC.ApprovePayment" {
		t.Fatalf("name = %s", ended[0].Name())
	}
	var found bool
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "order.id" && kv.Value.AsString() == "o-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("attributes = %v", ended[0].Attributes())
	}
	if got := ended[0].InstrumentationScope().Name; got != "minishop-orders" {
		t.Fatalf("scope = %s", got)
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "minishop-orders", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
