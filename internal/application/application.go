package application

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/audit"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// ErrLockTimeout is returned by stores when a row or key lock could not be
// taken within the configured wait.
var ErrLockTimeout = errors.New("store: lock wait timed out")

// Tx exposes the repositories that take part in one atomic unit.
type Tx interface {
	Orders() order.TxRepository
	Stock() inventory.TxRepository
	Audit() audit.Appender
}

// UnitOfWork runs fn inside one atomic unit. Nothing fn wrote is visible
// unless fn returns nil and the commit succeeds.
type UnitOfWork interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type IDGenerator interface {
	NewID() string
}
