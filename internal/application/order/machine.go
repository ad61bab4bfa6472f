package order

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	appaudit "github.com/Zhima-Mochi/minishop-orders/internal/application/audit"
	appinv "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/keylock"

	"go.opentelemetry.io/otel/attribute"
)

const orderService = "order-service"

// Command is one requested transition.
type Command struct {
	OrderID        string
	ActorID        string
	Action         domain.Action
	Reason         string
	TrackingNumber string
	Metadata       map[string]string
	// Check inspects the order as loaded, after the state guard and before any write.
	Check func(o *domain.Order) error
	// Mutate adjusts the order after the transition, before the ledger and save.
	Mutate func(o *domain.Order, now time.Time)
}

type MachineDeps struct {
	UnitOfWork application.UnitOfWork
	Orders     domain.Repository
	Ledger     *appinv.Ledger
	Recorder   *appaudit.Recorder
	Authorizer Authorizer
	Locks      *keylock.Locker
	Publisher  domoutbox.Publisher
}

// Machine owns the transition graph. Each transition runs guard, ledger,
// save and audit in one unit, then publishes after commit.
type Machine struct {
	uow      application.UnitOfWork
	orders   domain.Repository
	ledger   *appinv.Ledger
	recorder *appaudit.Recorder
	authz    Authorizer
	locks    *keylock.Locker
	events   application.EventPublisher
	now      func() time.Time
	ins      application.Instrument
}

func NewMachine(deps MachineDeps, tel observability.Observability) *Machine {
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New(0)
	}
	ledger := deps.Ledger
	if ledger == nil {
		ledger = appinv.NewLedger(tel)
	}
	return &Machine{
		uow:      deps.UnitOfWork,
		orders:   deps.Orders,
		ledger:   ledger,
		recorder: deps.Recorder,
		authz:    deps.Authorizer,
		locks:    locks,
		events:   application.NewEventPublisher(deps.Publisher, tel),
		now:      time.Now,
		ins:      application.NewInstrument(tel, orderService),
	}
}

type applied struct {
	order   *domain.Order
	current *domain.Order
	noop    bool
	event   domain.TransitionCommittedEvent
}

// Apply runs cmd. On failure the returned order, when non-nil, is the
// unchanged order as it was loaded.
func (m *Machine) Apply(ctx context.Context, cmd Command) (_ *domain.Order, err error) {
	useCase := string(cmd.Action)
	ctx, call := m.ins.Start(ctx, useCase, spanName(cmd.Action),
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.action", string(cmd.Action)),
	)
	defer func() { call.End(ctx, err) }()
	call.Field("order_id", cmd.OrderID)

	switch {
	case cmd.OrderID == "":
		call.Fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	case cmd.ActorID == "":
		call.Fail("ACTOR_ID_REQUIRED")
		return nil, apperr.Validation("actor id is required")
	case !cmd.Action.Transitional():
		call.Fail("ACTION_INVALID")
		return nil, apperr.Validation("unknown action %q", cmd.Action)
	}
	if err := ctx.Err(); err != nil {
		call.Fail("CONTEXT_CANCELED")
		return nil, err
	}

	var res applied
	err = m.WithOrderLock(ctx, cmd.OrderID, func(ctx context.Context) error {
		var applyErr error
		res, applyErr = m.applyOnce(ctx, cmd)
		if applyErr != nil || res.noop {
			return applyErr
		}
		// Published under the order lock so the bus sees this order's events in commit order.
		m.events.Publish(ctx, call, res.event)
		return nil
	})

	switch {
	case err == nil && res.noop:
		call.SetStatus("IDEMPOTENT_NOOP")
		call.Span().AddEvent("order.idempotent_replay")
		return res.order, nil
	case err == nil:
		call.Field("from", string(res.event.From))
		call.Field("to", string(res.event.To))
		return res.order, nil
	case errors.Is(err, domain.ErrConflict):
		return m.resolveConflict(ctx, call, cmd, err)
	}
	call.Fail(statusText(err))
	return res.current, err
}

// WithOrderLock serializes fn with every other mutation of orderID in this
// process. A wait beyond the lock timeout becomes STALE_STATE.
func (m *Machine) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context) error) error {
	unlock, err := m.locks.Lock(ctx, orderID)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return apperr.Wrap(apperr.CodeStaleState, "order is busy, refetch and retry", err)
		}
		return err
	}
	defer unlock()
	return fn(ctx)
}

func (m *Machine) applyOnce(ctx context.Context, cmd Command) (applied, error) {
	var out applied
	err := m.uow.Atomically(ctx, func(ctx context.Context, tx application.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return err
		}
		out.current = o.Clone()

		action := cmd.Action
		if action == domain.ActionCancel && cmd.ActorID == o.CustomerID {
			action = domain.ActionCancelOwn
		}
		if action == domain.ActionCancelOwn && cmd.ActorID != o.CustomerID {
			return application.Denied(cmd.ActorID, action, o.StoreID)
		}
		if err := application.Authorize(ctx, m.authz, cmd.ActorID, action, o.StoreID); err != nil {
			return err
		}

		from := o.Status
		now := m.now()
		changed, err := o.Apply(domain.Trigger{
			Action:         action,
			Reason:         cmd.Reason,
			TrackingNumber: cmd.TrackingNumber,
		}, now)
		if err != nil {
			return invalidTransition(action, from)
		}
		if !changed {
			out.noop = true
			out.order = out.current
			return nil
		}
		if cmd.Check != nil {
			if err := cmd.Check(out.current); err != nil {
				return err
			}
		}
		if cmd.Mutate != nil {
			cmd.Mutate(o, now)
		}

		restored := false
		switch o.Status {
		case domain.StatusPaid:
			if err := m.ledger.DecrementForOrder(ctx, tx.Stock(), o); err != nil {
				return err
			}
		case domain.StatusCancelled:
			if restored, err = m.ledger.RestoreForOrder(ctx, tx.Stock(), o); err != nil {
				return err
			}
		}

		if err := tx.Orders().Update(ctx, o); err != nil {
			return err
		}
		if _, err := m.recorder.Append(ctx, tx.Audit(), appaudit.AppendInput{
			ActorID:  cmd.ActorID,
			Action:   action,
			OrderID:  o.ID,
			Before:   from,
			After:    o.Status,
			Metadata: auditMetadata(cmd, o, restored),
		}); err != nil {
			return err
		}

		out.order = o
		out.event = domain.NewTransitionCommittedEvent(o, cmd.ActorID, action, from, restored)
		return nil
	})
	if err != nil {
		return out, translate(err)
	}
	return out, nil
}

// resolveConflict handles a lost version race: re-read once and treat a
// concurrent approval as our own.
func (m *Machine) resolveConflict(ctx context.Context, call *application.Call, cmd Command, cause error) (*domain.Order, error) {
	latest, err := m.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		call.Fail("CONFLICT_REFETCH_FAILED")
		return nil, apperr.Wrap(apperr.CodeStaleState, "order changed concurrently, refetch and retry", cause)
	}
	if cmd.Action == domain.ActionApprove && latest.Status == domain.StatusPaid {
		call.SetStatus("IDEMPOTENT_NOOP")
		call.Span().AddEvent("order.idempotent_replay")
		return latest, nil
	}
	call.Fail(string(apperr.CodeStaleState))
	return latest, apperr.Wrap(apperr.CodeStaleState, "order changed concurrently, refetch and retry", cause)
}

func auditMetadata(cmd Command, o *domain.Order, restored bool) map[string]string {
	md := maps.Clone(cmd.Metadata)
	if md == nil {
		md = make(map[string]string)
	}
	if cmd.Reason != "" {
		md["reason"] = cmd.Reason
	}
	if o.TrackingNumber != "" && o.Status == domain.StatusShipped {
		md["tracking_number"] = o.TrackingNumber
	}
	if restored {
		md["stock_restored"] = strconv.FormatBool(restored)
	}
	if o.Status == domain.StatusPaid {
		md["stock_decremented"] = "true"
		md["total"] = o.TotalAmount.String()
		md["currency"] = o.Currency
	}
	return md
}

func invalidTransition(action domain.Action, from domain.Status) *apperr.Error {
	return &apperr.Error{
		Code:    apperr.CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s an order in %s", action, from),
		Metadata: map[string]string{
			"action": string(action),
			"status": string(from),
		},
		Cause: domain.ErrInvalidStateTransition,
	}
}

// translate maps store and domain errors onto the stable codes. ErrConflict
// passes through so Apply can resolve it.
func translate(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrConflict):
		return err
	case errors.Is(err, domain.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "order not found", err)
	case errors.Is(err, application.ErrLockTimeout):
		return apperr.Wrap(apperr.CodeStaleState, "order is locked by another transition, refetch and retry", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.Wrap(apperr.CodeInternal, "order: persist transition", err)
}

func statusText(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "CONTEXT_CANCELED"
	}
	return string(apperr.CodeOf(err))
}

func spanName(a domain.Action) string {
	switch a {
	case domain.ActionApprove:
		return "ApproveOrder"
	case domain.ActionReject:
		return "RejectOrder"
	case domain.ActionShip:
		return "ShipOrder"
	case domain.ActionDeliver:
		return "DeliverOrder"
	case domain.ActionCancel, domain.ActionCancelOwn:
		return "CancelOrder"
	}
	return "TransitionOrder"
}
