package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if key := order.IdempotencyKey; key != "" {
		if _, exists := r.s.idempotency[idempotencyIndex(order.CustomerID, key)]; exists {
			return domain.ErrConflict
		}
	}

	r.s.orders[order.ID] = cloneOrder(order)
	if key := order.IdempotencyKey; key != "" {
		r.s.idempotency[idempotencyIndex(order.CustomerID, key)] = order.ID
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domain.Order, error) {
	_ = ctx
	if key == "" {
		return nil, domain.ErrNotFound
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	orderID, ok := r.s.idempotency[idempotencyIndex(customerID, key)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	order, found := r.s.orders[orderID]
	if !found {
		return nil, domain.ErrNotFound
	}
	return cloneOrder(order), nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	if order == nil {
		return nil
	}
	return order.Clone()
}
