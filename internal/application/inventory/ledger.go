package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

// Line is the quantity an order needs from one stock row.
type Line struct {
	Key      dominv.Key
	Quantity int
}

// Lines aggregates items per stock key and sorts by key so every caller
// locks rows in the same order.
func Lines(items []domorder.Item) []Line {
	totals := make(map[dominv.Key]int, len(items))
	for _, it := range items {
		totals[dominv.KeyOf(it.ProductID, it.VariantID)] += it.Quantity
	}
	lines := make([]Line, 0, len(totals))
	for k, q := range totals {
		lines = append(lines, Line{Key: k, Quantity: q})
	}
	slices.SortFunc(lines, func(a, b Line) int { return cmp.Compare(a.Key, b.Key) })
	return lines
}

// Ledger decrements and restores stock for an order. It must run inside the
// atomic unit of the transition that needs it; a failure leaves the rollback
// to the caller's unit.
type Ledger struct {
	tracer observability.Tracer
	log    observability.Logger
}

func NewLedger(tel observability.Observability) *Ledger {
	tracer, logger, _ := observability.Resolve(tel)
	return &Ledger{
		tracer: tracer,
		log:    logger.With(observability.F("component", "inventory_ledger")),
	}
}

// DecrementForOrder takes every line of o out of stock, all or nothing.
func (l *Ledger) DecrementForOrder(ctx context.Context, stock dominv.TxRepository, o *domorder.Order) error {
	if o.StockDecremented {
		return nil
	}
	lines := Lines(o.Items)
	ctx, span := l.tracer.Start(ctx, "Ledger.DecrementForOrder",
		attribute.String("order.id", o.ID),
		attribute.Int("inventory.lines", len(lines)),
	)
	defer span.End()

	for _, line := range lines {
		if err := stock.Decrement(ctx, line.Key, line.Quantity); err != nil {
			span.RecordError(err)
			return l.decrementError(ctx, o, line, err)
		}
	}
	o.MarkStockDecremented()
	logctx.FromOr(ctx, l.log).Debug("stock_decremented",
		observability.F("order_id", o.ID),
		observability.F("lines", len(lines)),
	)
	return nil
}

// RestoreForOrder puts back what DecrementForOrder took. It reports whether
// anything was restored; a second call is a no-op.
func (l *Ledger) RestoreForOrder(ctx context.Context, stock dominv.TxRepository, o *domorder.Order) (bool, error) {
	if !o.StockDecremented {
		return false, nil
	}
	lines := Lines(o.Items)
	ctx, span := l.tracer.Start(ctx, "Ledger.RestoreForOrder",
		attribute.String("order.id", o.ID),
		attribute.Int("inventory.lines", len(lines)),
	)
	defer span.End()

	for _, line := range lines {
		if err := stock.Increment(ctx, line.Key, line.Quantity); err != nil {
			span.RecordError(err)
			if errors.Is(err, application.ErrLockTimeout) {
				return false, err
			}
			return false, fmt.Errorf("inventory: restore %s: %w", line.Key, err)
		}
	}
	o.MarkStockRestored()
	logctx.FromOr(ctx, l.log).Debug("stock_restored",
		observability.F("order_id", o.ID),
		observability.F("lines", len(lines)),
	)
	return true, nil
}

func (l *Ledger) decrementError(ctx context.Context, o *domorder.Order, line Line, err error) error {
	reason := ""
	switch {
	case errors.Is(err, dominv.ErrInsufficientStock):
		reason = dominv.FailureReasonInsufficientStock
	case errors.Is(err, dominv.ErrNotFound):
		reason = dominv.FailureReasonNotFound
	case errors.Is(err, application.ErrLockTimeout):
		return err
	default:
		return fmt.Errorf("inventory: decrement %s: %w", line.Key, err)
	}

	productID, variantID := line.Key.Split()
	logctx.FromOr(ctx, l.log).Info("stock_decrement_refused",
		observability.F("order_id", o.ID),
		observability.F("stock_key", string(line.Key)),
		observability.F("reason", reason),
	)
	return &apperr.Error{
		Code:    apperr.CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s", line.Key),
		Metadata: map[string]string{
			"product_id": productID,
			"variant_id": variantID,
			"requested":  strconv.Itoa(line.Quantity),
			"reason":     reason,
		},
		Cause: err,
	}
}
