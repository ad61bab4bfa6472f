package order

import "strings"

// OrderState implements the state pattern for order lifecycle transitions.
type OrderState interface {
	Status() Status
	OnApprove(o *Order) (OrderState, error)
	OnReject(o *Order, reason string) (OrderState, error)
	OnShip(o *Order, trackingNumber string) (OrderState, error)
	OnDeliver(o *Order) (OrderState, error)
	OnCancel(o *Order, reason string) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusPendingAdmin:
		return pendingAdminState{}
	case StatusPaid:
		return paidState{}
	case StatusShipped:
		return shippedState{}
	case StatusDelivered:
		return terminalState{status: StatusDelivered}
	case StatusRejected:
		return terminalState{status: StatusRejected}
	case StatusCancelled:
		return terminalState{status: StatusCancelled}
	}
	return nil
}

type pendingAdminState struct{}

func (pendingAdminState) Status() Status { return StatusPendingAdmin }

func (pendingAdminState) OnApprove(*Order) (OrderState, error) {
	return paidState{}, nil
}

func (pendingAdminState) OnReject(o *Order, reason string) (OrderState, error) {
	o.RejectionReason = strings.TrimSpace(reason)
	return terminalState{status: StatusRejected}, nil
}

func (pendingAdminState) OnShip(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingAdminState) OnDeliver(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingAdminState) OnCancel(o *Order, reason string) (OrderState, error) {
	o.CancelReason = strings.TrimSpace(reason)
	return terminalState{status: StatusCancelled}, nil
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

// Operators double-click: approving a paid order is a no-op.
func (paidState) OnApprove(*Order) (OrderState, error) {
	return paidState{}, nil
}

func (paidState) OnReject(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (paidState) OnShip(o *Order, trackingNumber string) (OrderState, error) {
	o.TrackingNumber = strings.TrimSpace(trackingNumber)
	return shippedState{}, nil
}

func (paidState) OnDeliver(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (paidState) OnCancel(o *Order, reason string) (OrderState, error) {
	o.CancelReason = strings.TrimSpace(reason)
	return terminalState{status: StatusCancelled}, nil
}

type shippedState struct{}

func (shippedState) Status() Status { return StatusShipped }

func (shippedState) OnApprove(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (shippedState) OnReject(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (shippedState) OnShip(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (shippedState) OnDeliver(*Order) (OrderState, error) {
	return terminalState{status: StatusDelivered}, nil
}

func (shippedState) OnCancel(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

// terminalState rejects everything, including repeats of the transition that entered it.
type terminalState struct{ status Status }

func (s terminalState) Status() Status { return s.status }

func (terminalState) OnApprove(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (terminalState) OnReject(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (terminalState) OnShip(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (terminalState) OnDeliver(*Order) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (terminalState) OnCancel(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}
