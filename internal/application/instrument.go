package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SpanPrefix = "UC."

// Instrument holds the RED metrics and base logger shared by the use cases of one service.
type Instrument struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewInstrument(tel observability.Observability, service string) Instrument {
	tracer, logger, metrics := observability.Resolve(tel)
	return Instrument{
		tracer:       tracer,
		log:          logger.With(observability.F("service", service)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (in Instrument) Logger() observability.Logger { return in.log }

func (in Instrument) Tracer() observability.Tracer { return in.tracer }

// Call tracks one use case execution. Outcome and Status follow the
// "success"/"OK" convention until Fail or SetStatus changes them.
type Call struct {
	in      Instrument
	useCase string
	span    trace.Span
	logger  observability.Logger
	start   time.Time
	outcome string
	status  string
	fields  []observability.Field
}

// Start opens the use case span and binds a request-scoped logger to ctx.
func (in Instrument) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Call) {
	attrs = append(attrs, attribute.String("use_case", useCase))
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, in.log, observability.F("use_case", useCase))
	return ctx, &Call{
		in:      in,
		useCase: useCase,
		span:    span,
		logger:  logger,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (c *Call) Span() trace.Span { return c.span }

func (c *Call) Logger() observability.Logger { return c.logger }

// Fail marks the call as an error with a stable status text.
func (c *Call) Fail(status string) {
	c.outcome, c.status = "error", status
}

// SetStatus keeps the outcome and replaces the status text.
func (c *Call) SetStatus(status string) {
	c.status = status
}

func (c *Call) Field(key string, value any) {
	c.fields = append(c.fields, observability.F(key, value))
}

// End closes the span, records RED metrics and writes the use_case_done line.
func (c *Call) End(ctx context.Context, err error) {
	lat := time.Since(c.start).Seconds()
	if err != nil && c.outcome == "success" {
		c.outcome = "error"
		if c.status == "OK" {
			c.status = "ERROR"
		}
	}

	if c.span != nil {
		if err != nil {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, c.status)
		} else {
			c.span.SetStatus(codes.Ok, c.status)
		}
		c.span.End()
	}

	c.in.reqCounter.Add(1,
		observability.L("use_case", c.useCase),
		observability.L("outcome", c.outcome),
	)
	c.in.durHistogram.Observe(lat,
		observability.L("use_case", c.useCase),
	)

	fields := append([]observability.Field{
		observability.F("outcome", c.outcome),
		observability.F("status", c.status),
		observability.F("latency_seconds", lat),
	}, c.fields...)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	c.logger.Info("use_case_done", fields...)
}

func (c *Call) Outcome() string { return c.outcome }
