package order

import "context"

// Action names an operation checked against the authorizer and recorded in audit entries.
type Action string

const (
	ActionCreate      Action = "order.create"
	ActionView        Action = "order.view"
	ActionApprove     Action = "order.approve"
	ActionReject      Action = "order.reject"
	ActionShip        Action = "order.ship"
	ActionDeliver     Action = "order.deliver"
	ActionCancel      Action = "order.cancel"
	ActionCancelOwn   Action = "order.cancel_own"
	ActionSubmitProof Action = "payment.submit_proof"
	ActionReadAudit   Action = "audit.read"
)

// Transitional reports whether a moves the order through the state graph.
func (a Action) Transitional() bool {
	switch a {
	case ActionApprove, ActionReject, ActionShip, ActionDeliver, ActionCancel, ActionCancelOwn:
		return true
	}
	return false
}

// Trigger carries the inputs of one transition.
type Trigger struct {
	Action         Action
	Reason         string
	TrackingNumber string
}

// Authorizer is the external RBAC collaborator consulted before every mutation.
type Authorizer interface {
	CanPerform(ctx context.Context, actorID string, action Action, storeID string) (bool, error)
}
