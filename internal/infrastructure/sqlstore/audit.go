package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	domaudit "github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
)

type AuditRepository struct {
	s *Store
}

func (r *AuditRepository) ListByOrder(ctx context.Context, orderID string) ([]domaudit.Entry, error) {
	rows, err := r.s.db.QueryContext(ctx, r.s.q(`
SELECT id, order_id, actor_id, action, before_status, after_status, metadata, created_at
FROM audit_entries
WHERE order_id = ?
ORDER BY created_at, id`), orderID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domaudit.Entry
	for rows.Next() {
		var (
			e        domaudit.Entry
			metadata string
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &e.ActorID, &e.Action, &e.Before, &e.After, &metadata, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit entry %s metadata: %w", e.ID, err)
		}
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

type txAudit struct{ t *tx }

func (a txAudit) Append(ctx context.Context, e domaudit.Entry) error {
	if e.ID == "" || e.OrderID == "" {
		return domaudit.ErrInvalidEntry
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	if _, err := a.t.q.ExecContext(ctx, a.t.s.q(`
INSERT INTO audit_entries (id, order_id, actor_id, action, before_status, after_status, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.ID, e.OrderID, e.ActorID, e.Action, e.Before, e.After, string(raw), toMillis(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
