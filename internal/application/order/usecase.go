package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const useCaseOrderCreate = "order.create"

// CreateOrderUseCase places a new order in PENDING_ADMIN. Creation is not a
// transition, so it writes no audit entry.
type CreateOrderUseCase struct {
	repo        domain.Repository
	idGenerator IDGenerator
	authz       Authorizer
	events      application.EventPublisher
	now         func() time.Time
	ins         application.Instrument
}

func NewCreateOrderUseCase(
	repo domain.Repository,
	idGen IDGenerator,
	authz Authorizer,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *CreateOrderUseCase {
	return &CreateOrderUseCase{
		repo:        repo,
		idGenerator: idGen,
		authz:       authz,
		events:      application.NewEventPublisher(publisher, tel),
		now:         time.Now,
		ins:         application.NewInstrument(tel, orderService),
	}
}

type CreateOrderItem struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateOrderInput struct {
	ActorID        string
	IdempotencyKey string
	StoreID        string
	CustomerID     string
	Currency       string
	Items          []CreateOrderItem
}

type CreateOrderResult struct {
	Order    *domain.Order
	Replayed bool
}

// Execute performs the order creation flow.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, call := uc.ins.Start(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.String("order.customer_id", cmd.CustomerID),
		attribute.String("order.store_id", cmd.StoreID),
		attribute.Int("order.items", len(cmd.Items)),
	)
	defer func() { call.End(ctx, err) }()
	span := call.Span()

	if cmd.CustomerID == "" {
		call.Fail("CUSTOMER_ID_REQUIRED")
		return nil, apperr.Validation("customer id is required")
	}
	if cmd.StoreID == "" {
		call.Fail("STORE_ID_REQUIRED")
		return nil, apperr.Validation("store id is required")
	}
	actor := cmd.ActorID
	if actor == "" {
		actor = cmd.CustomerID
	}
	if actor != cmd.CustomerID {
		if err := application.Authorize(ctx, uc.authz, actor, domain.ActionCreate, cmd.StoreID); err != nil {
			call.Fail(string(apperr.CodeOf(err)))
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		call.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	if cmd.IdempotencyKey != "" {
		existing, repoErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey)
		switch {
		case repoErr == nil:
			return uc.replay(call, existing, cmd)
		case errors.Is(repoErr, domain.ErrNotFound):
			// continue
		default:
			call.Fail("IDEMPOTENCY_LOOKUP_FAILED")
			return nil, wrapRepositoryError(repoErr)
		}
	}

	items := make([]domain.Item, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		items = append(items, domain.Item{
			ProductID: strings.TrimSpace(it.ProductID),
			VariantID: strings.TrimSpace(it.VariantID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	entity, derr := domain.New(domain.NewParams{
		ID:             uc.idGenerator.NewID(),
		StoreID:        cmd.StoreID,
		CustomerID:     cmd.CustomerID,
		Currency:       cmd.Currency,
		IdempotencyKey: cmd.IdempotencyKey,
		Items:          items,
		Now:            uc.now(),
	})
	if derr != nil {
		call.Fail("DOMAIN_CONSTRUCTION_FAILED")
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid order", derr)
	}

	if err := uc.repo.Insert(ctx, entity); err != nil {
		if errors.Is(err, domain.ErrConflict) && cmd.IdempotencyKey != "" {
			if existing, lookupErr := uc.repo.FindByIdempotency(ctx, cmd.CustomerID, cmd.IdempotencyKey); lookupErr == nil {
				return uc.replay(call, existing, cmd)
			}
		}
		call.Fail("REPO_INSERT_FAILED")
		return nil, wrapRepositoryError(err)
	}

	uc.events.Publish(ctx, call, domain.NewPlacedEvent(entity))

	call.Field("order_id", entity.ID)
	span.SetAttributes(
		attribute.String("order.id", entity.ID),
		attribute.String("order.status", string(entity.Status)),
	)
	return &CreateOrderResult{Order: entity}, nil
}

// replay returns the order first created under the key. Reusing the key for a
// different store, currency or item list is refused.
func (uc *CreateOrderUseCase) replay(call *application.Call, existing *domain.Order, cmd CreateOrderInput) (*CreateOrderResult, error) {
	if !sameRequest(existing, cmd) {
		call.Fail("IDEMPOTENCY_KEY_REUSED")
		return nil, apperr.WithMetadata(apperr.CodeValidation,
			"idempotency key was already used for a different order",
			map[string]string{
				"idempotency_key": cmd.IdempotencyKey,
				"order_id":        existing.ID,
			},
		)
	}
	uc.replayed(call, existing)
	return &CreateOrderResult{Order: existing, Replayed: true}, nil
}

func sameRequest(o *domain.Order, cmd CreateOrderInput) bool {
	if o.StoreID != cmd.StoreID || o.Currency != strings.ToUpper(strings.TrimSpace(cmd.Currency)) {
		return false
	}
	if len(o.Items) != len(cmd.Items) {
		return false
	}
	for i, it := range cmd.Items {
		got := o.Items[i]
		if got.ProductID != strings.TrimSpace(it.ProductID) ||
			got.VariantID != strings.TrimSpace(it.VariantID) ||
			got.Quantity != it.Quantity ||
			!got.UnitPrice.Equal(it.UnitPrice) {
			return false
		}
	}
	return true
}

func (uc *CreateOrderUseCase) replayed(call *application.Call, existing *domain.Order) {
	call.SetStatus("IDEMPOTENT_REPLAY")
	call.Field("order_id", existing.ID)
	call.Span().SetAttributes(attribute.String("order.status", string(existing.Status)))
	call.Span().AddEvent("order.idempotent_replay",
		trace.WithAttributes(attribute.String("order.id", existing.ID)),
	)
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "order not found", err)
	case errors.Is(err, domain.ErrConflict):
		return apperr.Wrap(apperr.CodeStaleState, "order conflict", err)
	default:
		return apperr.Wrap(apperr.CodeInternal, "order: repository failure", err)
	}
}
