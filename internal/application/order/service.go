package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	appaudit "github.com/Zhima-Mochi/minishop-orders/internal/application/audit"
	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderGet = "order.get"

// Service is the order surface used by transports: creation, reads and the
// staff transitions that do not go through payment verification.
type Service struct {
	create   *CreateOrderUseCase
	machine  *Machine
	repo     domain.Repository
	recorder *appaudit.Recorder
	authz    Authorizer
	ins      application.Instrument
}

func NewService(
	create *CreateOrderUseCase,
	machine *Machine,
	repo domain.Repository,
	recorder *appaudit.Recorder,
	authz Authorizer,
	tel observability.Observability,
) *Service {
	return &Service{
		create:   create,
		machine:  machine,
		repo:     repo,
		recorder: recorder,
		authz:    authz,
		ins:      application.NewInstrument(tel, orderService),
	}
}

func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	return s.create.Execute(ctx, input)
}

// Get returns the order if actorID is its customer or may view the store's orders.
func (s *Service) Get(ctx context.Context, id, actorID string) (_ *domain.Order, err error) {
	ctx, call := s.ins.Start(ctx, useCaseOrderGet, "GetOrder", attribute.String("order.id", id))
	defer func() { call.End(ctx, err) }()

	o, err := s.load(ctx, id)
	if err != nil {
		call.Fail(string(apperr.CodeOf(err)))
		return nil, err
	}
	if actorID != o.CustomerID {
		if err := application.Authorize(ctx, s.authz, actorID, domain.ActionView, o.StoreID); err != nil {
			call.Fail(string(apperr.CodeOf(err)))
			return nil, err
		}
	}
	return o, nil
}

// AuditTrail lists the audit entries of an order for staff of its store.
func (s *Service) AuditTrail(ctx context.Context, id, actorID string) ([]domaudit.Entry, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := application.Authorize(ctx, s.authz, actorID, domain.ActionReadAudit, o.StoreID); err != nil {
		return nil, err
	}
	return s.recorder.List(ctx, id)
}

func (s *Service) Ship(ctx context.Context, id, actorID, trackingNumber string) (*domain.Order, error) {
	return s.machine.Apply(ctx, Command{
		OrderID:        id,
		ActorID:        actorID,
		Action:         domain.ActionShip,
		TrackingNumber: trackingNumber,
	})
}

func (s *Service) Deliver(ctx context.Context, id, actorID string) (*domain.Order, error) {
	return s.machine.Apply(ctx, Command{
		OrderID: id,
		ActorID: actorID,
		Action:  domain.ActionDeliver,
	})
}

// Cancel is accepted from staff and from the order's own customer.
func (s *Service) Cancel(ctx context.Context, id, actorID, reason string) (*domain.Order, error) {
	return s.machine.Apply(ctx, Command{
		OrderID: id,
		ActorID: actorID,
		Action:  domain.ActionCancel,
		Reason:  reason,
	})
}

func (s *Service) load(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, apperr.Validation("order id is required")
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "order not found", err)
		}
		return nil, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}
