package audit

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	auditService    = "audit-service"
	useCaseAuditLog = "audit.list"
)

type AppendInput struct {
	ActorID  string
	Action   domorder.Action
	OrderID  string
	Before   domorder.Status
	After    domorder.Status
	Metadata map[string]string
}

// Recorder writes one entry per committed transition and serves the read-only trail.
type Recorder struct {
	ids    application.IDGenerator
	reader domaudit.Reader
	now    func() time.Time
	ins    application.Instrument
}

func NewRecorder(ids application.IDGenerator, reader domaudit.Reader, tel observability.Observability) *Recorder {
	return &Recorder{
		ids:    ids,
		reader: reader,
		now:    time.Now,
		ins:    application.NewInstrument(tel, auditService),
	}
}

// Append must be called with the appender of the transition's unit.
func (r *Recorder) Append(ctx context.Context, appender domaudit.Appender, in AppendInput) (domaudit.Entry, error) {
	if in.ActorID == "" || in.OrderID == "" || in.Action == "" {
		return domaudit.Entry{}, fmt.Errorf("%w: actor, action and order are required", domaudit.ErrInvalidEntry)
	}
	if !in.Before.Valid() || !in.After.Valid() {
		return domaudit.Entry{}, fmt.Errorf("%w: unknown status %q -> %q", domaudit.ErrInvalidEntry, in.Before, in.After)
	}
	entry := domaudit.Entry{
		ID:        r.ids.NewID(),
		ActorID:   in.ActorID,
		Action:    string(in.Action),
		OrderID:   in.OrderID,
		Before:    string(in.Before),
		After:     string(in.After),
		Metadata:  maps.Clone(in.Metadata),
		CreatedAt: r.now().UTC(),
	}
	if err := appender.Append(ctx, entry); err != nil {
		return domaudit.Entry{}, fmt.Errorf("audit: append: %w", err)
	}
	return entry, nil
}

// List returns the trail of one order, oldest first.
func (r *Recorder) List(ctx context.Context, orderID string) (_ []domaudit.Entry, err error) {
	ctx, call := r.ins.Start(ctx, useCaseAuditLog, "ListAudit",
		attribute.String("order.id", orderID),
	)
	defer func() { call.End(ctx, err) }()

	if orderID == "" {
		call.Fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	entries, err := r.reader.ListByOrder(ctx, orderID)
	if err != nil {
		call.Fail("REPO_LIST_FAILED")
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	call.Field("entries", len(entries))
	return entries, nil
}
