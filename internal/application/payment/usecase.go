package payment

import (
	"context"
	"errors"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"

	"go.opentelemetry.io/otel/attribute"
)

const (
	paymentService         = "payment-service"
	useCasePaymentSubmit   = "payment.submit_proof"
	paymentSubmitSpanName  = "SubmitPaymentProof"
	statusProofInvalid     = "PROOF_INVALID"
	statusOrderNotPending  = "ORDER_NOT_PENDING"
	statusCustomerMismatch = "CUSTOMER_MISMATCH"
)

type SubmitProofInput struct {
	OrderID string
	ActorID string
	Proof   dompay.ProofInput
}

type SubmitProofResult struct {
	Order    *domorder.Order
	Replaced bool
}

// SubmitProofUseCase stores a customer's proof of payment. It never changes
// the order status and writes no audit entry.
type SubmitProofUseCase struct {
	uow     application.UnitOfWork
	machine *apporder.Machine
	authz   domorder.Authorizer
	events  application.EventPublisher
	now     func() time.Time
	ins     application.Instrument
}

func NewSubmitProofUseCase(
	uow application.UnitOfWork,
	machine *apporder.Machine,
	authz domorder.Authorizer,
	publisher domoutbox.Publisher,
	tel observability.Observability,
) *SubmitProofUseCase {
	return &SubmitProofUseCase{
		uow:     uow,
		machine: machine,
		authz:   authz,
		events:  application.NewEventPublisher(publisher, tel),
		now:     time.Now,
		ins:     application.NewInstrument(tel, paymentService),
	}
}

func (uc *SubmitProofUseCase) Execute(ctx context.Context, cmd SubmitProofInput) (_ *SubmitProofResult, err error) {
	ctx, call := uc.ins.Start(ctx, useCasePaymentSubmit, paymentSubmitSpanName,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("payment.method", cmd.Proof.Method),
	)
	defer func() { call.End(ctx, err) }()
	call.Field("order_id", cmd.OrderID)

	if cmd.OrderID == "" {
		call.Fail("ORDER_ID_REQUIRED")
		return nil, apperr.Validation("order id is required")
	}
	if cmd.ActorID == "" {
		call.Fail("ACTOR_ID_REQUIRED")
		return nil, apperr.Validation("actor id is required")
	}
	proof, perr := dompay.NewProof(cmd.Proof, uc.now())
	if perr != nil {
		call.Fail(statusProofInvalid)
		return nil, apperr.Wrap(apperr.CodeValidation, "invalid payment proof", perr)
	}

	var (
		result  SubmitProofResult
		current *domorder.Order
	)
	err = uc.machine.WithOrderLock(ctx, cmd.OrderID, func(ctx context.Context) error {
		txErr := uc.uow.Atomically(ctx, func(ctx context.Context, tx application.Tx) error {
			o, err := tx.Orders().GetForUpdate(ctx, cmd.OrderID)
			if err != nil {
				return err
			}
			current = o.Clone()
			if o.CustomerID != cmd.ActorID {
				call.Fail(statusCustomerMismatch)
				return application.Denied(cmd.ActorID, domorder.ActionSubmitProof, o.StoreID)
			}
			if err := application.Authorize(ctx, uc.authz, cmd.ActorID, domorder.ActionSubmitProof, o.StoreID); err != nil {
				return err
			}
			replaced, err := o.AttachProof(proof, uc.now())
			if err != nil {
				call.Fail(statusOrderNotPending)
				return apperr.WithMetadata(apperr.CodeInvalidTransition,
					"payment proof is only accepted while the order awaits verification",
					map[string]string{"status": string(o.Status)},
				)
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			result = SubmitProofResult{Order: o, Replaced: replaced}
			return nil
		})
		if txErr != nil {
			return txErr
		}
		uc.events.Publish(ctx, call, dompay.ProofSubmittedEvent{
			OrderID:    result.Order.ID,
			StoreID:    result.Order.StoreID,
			CustomerID: result.Order.CustomerID,
			Method:     proof.Method,
			Amount:     proof.Amount,
			Currency:   proof.Currency,
			Replaced:   result.Replaced,
			OccurredAt: proof.SubmittedAt,
		})
		return nil
	})
	if err != nil {
		err = translate(err)
		if call.Outcome() == "success" {
			call.Fail(string(apperr.CodeOf(err)))
		}
		if current != nil {
			return &SubmitProofResult{Order: current}, err
		}
		return nil, err
	}
	call.Field("replaced", result.Replaced)
	return &result, nil
}

func translate(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, domorder.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "order not found", err)
	case errors.Is(err, domorder.ErrConflict), errors.Is(err, application.ErrLockTimeout):
		return apperr.Wrap(apperr.CodeStaleState, "order changed concurrently, refetch and retry", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return apperr.Wrap(apperr.CodeInternal, "payment: persist proof", err)
}
