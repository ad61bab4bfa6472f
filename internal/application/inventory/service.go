package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService = "inventory-service"
	useCaseStockSet  = "inventory.stock_set"
	useCaseStockGet  = "inventory.stock_get"
)

// Service seeds and reads stock rows for operators. Product CRUD lives elsewhere.
type Service struct {
	repo dominv.Repository
	now  func() time.Time
	ins  application.Instrument
}

func NewService(repo dominv.Repository, tel observability.Observability) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
		ins:  application.NewInstrument(tel, inventoryService),
	}
}

func (s *Service) SetStock(ctx context.Context, productID, variantID string, quantity int) (_ *dominv.Stock, err error) {
	ctx, call := s.ins.Start(ctx, useCaseStockSet, "SetStock",
		attribute.String("inventory.key", string(dominv.KeyOf(productID, variantID))),
	)
	defer func() { call.End(ctx, err) }()

	stock, derr := dominv.NewStock(productID, variantID, quantity, s.now())
	switch {
	case errors.Is(derr, dominv.ErrProductRequired):
		call.Fail("PRODUCT_ID_REQUIRED")
		return nil, apperr.Wrap(apperr.CodeValidation, "product id is required", derr)
	case derr != nil:
		call.Fail("QUANTITY_INVALID")
		return nil, apperr.Wrap(apperr.CodeValidation, "quantity must be zero or greater", derr)
	}
	if err := s.repo.Set(ctx, stock); err != nil {
		call.Fail("REPO_SET_FAILED")
		return nil, fmt.Errorf("inventory: set: %w", err)
	}
	call.Field("quantity", quantity)
	return stock, nil
}

func (s *Service) Stock(ctx context.Context, productID, variantID string) (_ *dominv.Stock, err error) {
	key := dominv.KeyOf(productID, variantID)
	ctx, call := s.ins.Start(ctx, useCaseStockGet, "GetStock",
		attribute.String("inventory.key", string(key)),
	)
	defer func() { call.End(ctx, err) }()

	stock, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, dominv.ErrNotFound) {
			call.Fail("NOT_FOUND")
			return nil, apperr.Wrap(apperr.CodeNotFound, fmt.Sprintf("no stock row for %s", key), err)
		}
		call.Fail("REPO_GET_FAILED")
		return nil, fmt.Errorf("inventory: get: %w", err)
	}
	return stock, nil
}
