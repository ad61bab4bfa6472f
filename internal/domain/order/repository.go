package order

import "context"

// Repository serves reads and inserts outside a transition.
type Repository interface {
	// Insert fails with ErrConflict when the customer already used the idempotency key.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	FindByIdempotency(ctx context.Context, customerID, key string) (*Order, error)
}

// TxRepository is the order view inside an atomic unit.
type TxRepository interface {
	// GetForUpdate loads the order, taking a row lock where the store supports one.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update persists order if its Version still matches the stored one and
	// bumps Version on success. A mismatch yields ErrConflict.
	Update(ctx context.Context, order *Order) error
}
