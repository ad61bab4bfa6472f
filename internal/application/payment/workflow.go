package payment

import (
	"context"
	"strings"
	"time"

	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/apperr"
)

// Workflow gates the PENDING_ADMIN decisions on the submitted proof.
type Workflow struct {
	submit  *SubmitProofUseCase
	machine *apporder.Machine
}

func NewWorkflow(submit *SubmitProofUseCase, machine *apporder.Machine) *Workflow {
	return &Workflow{submit: submit, machine: machine}
}

func (w *Workflow) SubmitProof(ctx context.Context, in SubmitProofInput) (*SubmitProofResult, error) {
	return w.submit.Execute(ctx, in)
}

type DecisionInput struct {
	OrderID  string
	AdminID  string
	Reason   string
	Metadata map[string]string
}

// Approve moves the order to PAID. A proof must be on file; approving an
// order that is already PAID returns it unchanged.
func (w *Workflow) Approve(ctx context.Context, in DecisionInput) (*domorder.Order, error) {
	return w.machine.Apply(ctx, apporder.Command{
		OrderID:  in.OrderID,
		ActorID:  in.AdminID,
		Action:   domorder.ActionApprove,
		Metadata: in.Metadata,
		Check:    requireProof,
		Mutate:   verifyProof(in.AdminID),
	})
}

// Reject moves the order to REJECTED. The reason is mandatory and reaches
// both the audit trail and the customer.
func (w *Workflow) Reject(ctx context.Context, in DecisionInput) (*domorder.Order, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperr.Validation("a rejection reason is required")
	}
	return w.machine.Apply(ctx, apporder.Command{
		OrderID:  in.OrderID,
		ActorID:  in.AdminID,
		Action:   domorder.ActionReject,
		Reason:   reason,
		Metadata: in.Metadata,
		Mutate:   verifyProof(in.AdminID),
	})
}

func requireProof(o *domorder.Order) error {
	if o.Proof == nil {
		return apperr.WithMetadata(apperr.CodeValidation,
			"cannot approve an order without a payment proof",
			map[string]string{"order_id": o.ID},
		)
	}
	return nil
}

// verifyProof stamps the deciding admin once; a proof already decided keeps its verifier.
func verifyProof(adminID string) func(*domorder.Order, time.Time) {
	return func(o *domorder.Order, now time.Time) {
		if o.Proof != nil && !o.Proof.Decided() {
			o.Proof.MarkVerified(adminID, now)
		}
	}
}
