package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) Get(ctx context.Context, key domain.Key) (*domain.Stock, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.stock[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneStock(item), nil
}

// Set overwrites the row while holding its stock lock so it never races a unit in flight.
func (r *InventoryRepository) Set(ctx context.Context, stock *domain.Stock) error {
	if stock == nil {
		return nil
	}
	unlock, err := r.s.stockLocks.Lock(ctx, string(stock.Key))
	if err != nil {
		return err
	}
	defer unlock()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	next := cloneStock(stock)
	if cur, ok := r.s.stock[stock.Key]; ok {
		next.Version = cur.Version + 1
	}
	r.s.stock[stock.Key] = next
	stock.Version = next.Version
	return nil
}

func cloneStock(item *domain.Stock) *domain.Stock {
	if item == nil {
		return nil
	}
	clone := *item
	return &clone
}
