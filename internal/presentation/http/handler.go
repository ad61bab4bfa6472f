package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	appPayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	domainAudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	domainNotification "github.com/Zhima-Mochi/minishop-orders/internal/domain/notification"
	domainOrder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// OrderService is the order surface the handler drives.
type OrderService interface {
	CreateOrder(ctx context.Context, input appOrder.CreateOrderInput) (*appOrder.CreateOrderResult, error)
	Get(ctx context.Context, id, actorID string) (*domainOrder.Order, error)
	AuditTrail(ctx context.Context, id, actorID string) ([]domainAudit.Entry, error)
	Ship(ctx context.Context, id, actorID, trackingNumber string) (*domainOrder.Order, error)
	Deliver(ctx context.Context, id, actorID string) (*domainOrder.Order, error)
	Cancel(ctx context.Context, id, actorID, reason string) (*domainOrder.Order, error)
}

// PaymentWorkflow is the proof submission and admin decision surface.
type PaymentWorkflow interface {
	SubmitProof(ctx context.Context, in appPayment.SubmitProofInput) (*appPayment.SubmitProofResult, error)
	Approve(ctx context.Context, in appPayment.DecisionInput) (*domainOrder.Order, error)
	Reject(ctx context.Context, in appPayment.DecisionInput) (*domainOrder.Order, error)
}

type Options struct {
	// RequestTimeout bounds each request's context. Zero disables it.
	RequestTimeout time.Duration
	// SessionTTL is how long a live session stays active after a heartbeat.
	SessionTTL time.Duration
	// Health reports readiness of the backing store. Nil means always healthy.
	Health func(ctx context.Context) error
}

type Handler struct {
	orders   OrderService
	payments PaymentWorkflow
	sessions domainNotification.SessionRegistry
	opts     Options
	log      observability.Logger
	metrics  observability.Metrics
}

const (
	componentHTTPHandler = "http_server"
	headerActorID        = "X-Actor-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	headerReplayed       = "Idempotent-Replayed"
	headerProofReplaced  = "X-Proof-Replaced"

	defaultSessionTTL = 2 * time.Minute
	maxBodyBytes      = 1 << 20
)

func NewHandler(orders OrderService, payments PaymentWorkflow, sessions domainNotification.SessionRegistry,
	opts Options, tel observability.Observability,
) *Handler {
	_, logger, metrics := observability.Resolve(tel)
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	return &Handler{
		orders:   orders,
		payments: payments,
		sessions: sessions,
		opts:     opts,
		log:      logger.With(observability.F("component", componentHTTPHandler)),
		metrics:  metrics,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.Mount(mux)
	return mux
}

// Mount registers every route on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	// Trace → ObservabilityMiddleware (request logger) → HTTP metrics → Access log → Handler
	h.muxHandle(mux, "POST /orders", h.handleCreateOrder)
	h.muxHandle(mux, "GET /orders/{id}", h.handleGetOrder)
	h.muxHandle(mux, "GET /orders/{id}/audit", h.handleAuditTrail)
	h.muxHandle(mux, "POST /orders/{id}/payment-proof", h.handleSubmitProof)
	h.muxHandle(mux, "POST /orders/{id}/confirm-payment", h.handleConfirmPayment)
	h.muxHandle(mux, "POST /orders/{id}/reject", h.handleReject)
	h.muxHandle(mux, "POST /orders/{id}/ship", h.handleShip)
	h.muxHandle(mux, "POST /orders/{id}/deliver", h.handleDeliver)
	h.muxHandle(mux, "POST /orders/{id}/cancel", h.handleCancel)
	h.muxHandle(mux, "POST /live-sessions", h.handleLiveSession)
	h.muxHandle(mux, "GET /health", h.handleHealth)
}

func (h *Handler) muxHandle(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string {
				return r.Header.Get(headerRequestID)
			},
			func(r *http.Request) string {
				return r.Header.Get(headerTenantID)
			},
		)(
			h.withHTTPMetrics(
				h.withAccessLog(
					h.withTimeout(handler),
				),
			),
		),
	)
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), pattern)))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			logctx.FromOr(r.Context(), h.log).Warn("health_check_failed", observability.F("error", err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("actor_id", r.Header.Get(headerActorID)),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routeTemplate(route, r)),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r.WithContext(ctxWithSpan))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	requests := h.metrics.Counter(observability.MHTTPRequests)
	duration := h.metrics.Histogram(observability.MHTTPRequestDuration)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeTemplate(routeFromContext(r.Context()), r)),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		requests.Add(1, labels...)
		duration.Observe(time.Since(start).Seconds(), labels...)
	})
}

func (h *Handler) withTimeout(next http.Handler) http.Handler {
	if h.opts.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves dst untouched.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code     apperr.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorBody      `json:"error"`
	Order *orderResponse `json:"order,omitempty"`
}

// writeError renders err with its code's status. current, when loaded, is the
// unchanged order the request was made against.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, current *domainOrder.Order) {
	body := errorBody{Code: apperr.CodeOf(err), Message: err.Error()}
	status := body.Code.HTTPStatus()
	if ae, ok := apperr.As(err); ok {
		body.Message = ae.Message
		body.Metadata = ae.Metadata
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		body.Message = "request timed out"
		status = http.StatusGatewayTimeout
	case body.Code == apperr.CodeInternal:
		logctx.FromOr(r.Context(), h.log).Error("http_internal_error",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err),
		)
		body.Message = "internal error"
		body.Metadata = nil
	}
	resp := errorResponse{Error: body}
	if current != nil {
		o := toOrderResponse(current)
		resp.Order = &o
	}
	writeJSON(w, status, resp)
}

func (h *Handler) writeValidation(w http.ResponseWriter, r *http.Request, format string, args ...any) {
	h.writeError(w, r, apperr.Validation(format, args...), nil)
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

// routeTemplate strips the method from a "METHOD /path" pattern.
func routeTemplate(route string, r *http.Request) string {
	if route == "unknown" || route == "" {
		return r.URL.Path
	}
	if _, path, ok := strings.Cut(route, " "); ok {
		return path
	}
	return route
}
