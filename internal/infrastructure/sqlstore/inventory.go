package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"

	"github.com/shopspring/decimal"
)

type InventoryRepository struct {
	s *Store
}

func (r *InventoryRepository) Get(ctx context.Context, key dominv.Key) (*dominv.Stock, error) {
	var (
		st      dominv.Stock
		rawKey  string
		updated int64
	)
	err := r.s.db.QueryRowContext(ctx, r.s.q(`
SELECT stock_key, product_id, variant_id, quantity, version, updated_at
FROM stock
WHERE stock_key = ?`), string(key)).Scan(&rawKey, &st.ProductID, &st.VariantID, &st.Quantity, &st.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dominv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stock: %w", err)
	}
	st.Key = dominv.Key(rawKey)
	st.UpdatedAt = fromMillis(updated)
	return &st, nil
}

// Set upserts the on-hand quantity and reports the stored version back on stock.
func (r *InventoryRepository) Set(ctx context.Context, stock *dominv.Stock) error {
	if stock == nil {
		return nil
	}
	if stock.Quantity < 0 {
		return dominv.ErrInvalidQuantity
	}
	return r.s.withTx(ctx, func(q *sql.Tx) error {
		if _, err := q.ExecContext(ctx, r.s.q(r.s.dialect.upsertStock()),
			string(stock.Key), stock.ProductID, stock.VariantID, stock.Quantity, toMillis(stock.UpdatedAt),
		); err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		err := q.QueryRowContext(ctx, r.s.q("SELECT version FROM stock WHERE stock_key = ?"), string(stock.Key)).Scan(&stock.Version)
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return nil
	})
}

type txStock struct{ t *tx }

// Decrement is a conditional update; it never drives quantity below zero.
func (r txStock) Decrement(ctx context.Context, key dominv.Key, quantity int) error {
	if quantity <= 0 {
		return dominv.ErrInvalidQuantity
	}
	s := r.t.s
	res, err := r.t.q.ExecContext(ctx, s.q(`
UPDATE stock
SET quantity = quantity - ?, version = version + 1, updated_at = ?
WHERE stock_key = ? AND quantity >= ?`),
		quantity, toMillis(s.now()), string(key), quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	} else if n == 0 {
		if err := r.exists(ctx, key); err != nil {
			return err
		}
		return dominv.ErrInsufficientStock
	}
	return nil
}

func (r txStock) Increment(ctx context.Context, key dominv.Key, quantity int) error {
	if quantity <= 0 {
		return dominv.ErrInvalidQuantity
	}
	s := r.t.s
	res, err := r.t.q.ExecContext(ctx, s.q(`
UPDATE stock
SET quantity = quantity + ?, version = version + 1, updated_at = ?
WHERE stock_key = ?`),
		quantity, toMillis(s.now()), string(key),
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("increment stock: %w", err)
	} else if n == 0 {
		return dominv.ErrNotFound
	}
	return nil
}

func (r txStock) exists(ctx context.Context, key dominv.Key) error {
	var found int
	err := r.t.q.QueryRowContext(ctx, r.t.s.q("SELECT 1 FROM stock WHERE stock_key = ?"), string(key)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return dominv.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check stock: %w", err)
	}
	return nil
}

func parseDecimal(v string) (decimal.Decimal, error) {
	return decimal.NewFromString(v)
}
