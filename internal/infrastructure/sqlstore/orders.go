package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

const orderColumns = `id, store_id, customer_id, status, currency, total_amount, tracking_number,
rejection_reason, cancel_reason, stock_decremented, idempotency_key, version, created_at, updated_at`

type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Insert(ctx context.Context, o *domorder.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	return r.s.withTx(ctx, func(q *sql.Tx) error {
		return insertOrder(ctx, r.s, q, o)
	})
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domorder.Order, error) {
	return loadOrder(ctx, r.s, r.s.db, id, false)
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, customerID, key string) (*domorder.Order, error) {
	if key == "" {
		return nil, domorder.ErrNotFound
	}
	var id string
	err := r.s.db.QueryRowContext(ctx,
		r.s.q("SELECT id FROM orders WHERE customer_id = ? AND idempotency_key = ?"),
		customerID, key,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domorder.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order by idempotency key: %w", err)
	}
	return r.Get(ctx, id)
}

func insertOrder(ctx context.Context, s *Store, q querier, o *domorder.Order) error {
	_, err := q.ExecContext(ctx, s.q(`
INSERT INTO orders (`+orderColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.StoreID, o.CustomerID, string(o.Status), o.Currency, o.TotalAmount.String(), o.TrackingNumber,
		o.RejectionReason, o.CancelReason, boolInt(o.StockDecremented),
		sql.NullString{String: o.IdempotencyKey, Valid: o.IdempotencyKey != ""},
		o.Version, toMillis(o.CreatedAt), toMillis(o.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return domorder.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range o.Items {
		if _, err := q.ExecContext(ctx, s.q(`
INSERT INTO order_items (order_id, line_no, product_id, variant_id, quantity, unit_price)
VALUES (?, ?, ?, ?, ?, ?)`),
			o.ID, i, it.ProductID, it.VariantID, it.Quantity, it.UnitPrice.String(),
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	if o.Proof != nil {
		return putProof(ctx, s, q, o.ID, o.Proof)
	}
	return nil
}

func loadOrder(ctx context.Context, s *Store, q querier, id string, lock bool) (*domorder.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	if lock {
		query += s.dialect.forUpdate()
	}
	o, err := scanOrder(q.QueryRowContext(ctx, s.q(query), id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domorder.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = loadItems(ctx, s, q, id); err != nil {
		return nil, err
	}
	if o.Proof, err = loadProof(ctx, s, q, id); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(scan func(dest ...any) error) (*domorder.Order, error) {
	var (
		o           domorder.Order
		status      string
		total       string
		decremented int
		idem        sql.NullString
		created     int64
		updated     int64
	)
	if err := scan(
		&o.ID, &o.StoreID, &o.CustomerID, &status, &o.Currency, &total, &o.TrackingNumber,
		&o.RejectionReason, &o.CancelReason, &decremented, &idem, &o.Version, &created, &updated,
	); err != nil {
		return nil, err
	}
	amount, err := parseDecimal(total)
	if err != nil {
		return nil, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.Status = domorder.Status(status)
	o.TotalAmount = amount
	o.StockDecremented = decremented != 0
	o.IdempotencyKey = idem.String
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(updated)
	return &o, nil
}

func loadItems(ctx context.Context, s *Store, q querier, orderID string) ([]domorder.Item, error) {
	rows, err := q.QueryContext(ctx, s.q(`
SELECT product_id, variant_id, quantity, unit_price
FROM order_items
WHERE order_id = ?
ORDER BY line_no`), orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domorder.Item
	for rows.Next() {
		var (
			it    domorder.Item
			price string
		)
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = parseDecimal(price); err != nil {
			return nil, fmt.Errorf("order item price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadProof(ctx context.Context, s *Store, q querier, orderID string) (*dompay.Proof, error) {
	var (
		p          dompay.Proof
		amount     string
		images     string
		submitted  int64
		verifiedAt sql.NullInt64
	)
	err := q.QueryRowContext(ctx, s.q(`
SELECT method, transaction_id, amount, currency, image_urls, submitted_at, verified_by, verified_at
FROM payment_proofs
WHERE order_id = ?`), orderID).Scan(
		&p.Method, &p.TransactionID, &amount, &p.Currency, &images, &submitted, &p.VerifiedBy, &verifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get payment proof: %w", err)
	}
	if p.Amount, err = parseDecimal(amount); err != nil {
		return nil, fmt.Errorf("payment proof amount: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &p.ImageURLs); err != nil {
		return nil, fmt.Errorf("payment proof images: %w", err)
	}
	p.SubmittedAt = fromMillis(submitted)
	if verifiedAt.Valid {
		at := fromMillis(verifiedAt.Int64)
		p.VerifiedAt = &at
	}
	return &p, nil
}

// putProof replaces the proof row of orderID.
func putProof(ctx context.Context, s *Store, q querier, orderID string, p *dompay.Proof) error {
	images, err := json.Marshal(p.ImageURLs)
	if err != nil {
		return fmt.Errorf("encode proof images: %w", err)
	}
	var verifiedAt sql.NullInt64
	if p.VerifiedAt != nil {
		verifiedAt = sql.NullInt64{Int64: toMillis(*p.VerifiedAt), Valid: true}
	}
	if _, err := q.ExecContext(ctx, s.q("DELETE FROM payment_proofs WHERE order_id = ?"), orderID); err != nil {
		return fmt.Errorf("replace payment proof: %w", err)
	}
	if _, err := q.ExecContext(ctx, s.q(`
INSERT INTO payment_proofs (order_id, method, transaction_id, amount, currency, image_urls, submitted_at, verified_by, verified_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		orderID, p.Method, p.TransactionID, p.Amount.String(), p.Currency, string(images),
		toMillis(p.SubmittedAt), p.VerifiedBy, verifiedAt,
	); err != nil {
		return fmt.Errorf("insert payment proof: %w", err)
	}
	return nil
}

type txOrders struct{ t *tx }

func (r txOrders) GetForUpdate(ctx context.Context, id string) (*domorder.Order, error) {
	return loadOrder(ctx, r.t.s, r.t.q, id, true)
}

func (r txOrders) Update(ctx context.Context, o *domorder.Order) error {
	if o == nil || o.ID == "" {
		return errors.New("order repository: id is required")
	}
	s := r.t.s
	res, err := r.t.q.ExecContext(ctx, s.q(`
UPDATE orders
SET status = ?, tracking_number = ?, rejection_reason = ?, cancel_reason = ?,
    stock_decremented = ?, version = ?, updated_at = ?
WHERE id = ? AND version = ?`),
		string(o.Status), o.TrackingNumber, o.RejectionReason, o.CancelReason,
		boolInt(o.StockDecremented), o.Version+1, toMillis(o.UpdatedAt),
		o.ID, o.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n == 0 {
		var found int
		err := r.t.q.QueryRowContext(ctx, s.q("SELECT 1 FROM orders WHERE id = ?"), o.ID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return domorder.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return domorder.ErrConflict
	}
	if o.Proof != nil {
		if err := putProof(ctx, s, r.t.q, o.ID, o.Proof); err != nil {
			return err
		}
	}
	o.Version++
	return nil
}
