package inventory

import "context"

// Repository is the operator-facing view of stock rows.
type Repository interface {
	Get(ctx context.Context, key Key) (*Stock, error)
	// Set creates or overwrites the on-hand quantity of a row.
	Set(ctx context.Context, stock *Stock) error
}

// TxRepository mutates stock inside an atomic unit. Decrement is a
// compare-and-decrement: it fails with ErrInsufficientStock rather than going negative.
type TxRepository interface {
	Decrement(ctx context.Context, key Key, quantity int) error
	Increment(ctx context.Context, key Key, quantity int) error
}
