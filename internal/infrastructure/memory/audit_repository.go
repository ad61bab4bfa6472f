package memory

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
)

type AuditRepository struct {
	s *Store
}

// ListByOrder returns entries in append order.
func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Entry, error) {
	_ = ctx

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	src := r.s.audit[orderID]
	out := make([]domain.Entry, 0, len(src))
	for _, e := range src {
		out = append(out, e.Clone())
	}
	return out, nil
}
