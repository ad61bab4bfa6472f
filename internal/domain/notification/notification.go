// Package notification models the typed events fanned out to store staff and customers.
package notification

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidEvent   = errors.New("notification: invalid event")
	ErrInvalidPayload = errors.New("notification: invalid payload")
)

type Type string

const (
	TypeOrderPlaced     Type = "order_placed"
	TypeProofSubmitted  Type = "proof_submitted"
	TypePaymentApproved Type = "payment_approved"
	TypePaymentRejected Type = "payment_rejected"
	TypeOrderShipped    Type = "order_shipped"
	TypeOrderDelivered  Type = "order_delivered"
	TypeOrderCancelled  Type = "order_cancelled"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Role is the relation of a recipient to the order.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Audience lists the roles that receive events of type t.
func Audience(t Type) []Role {
	switch t {
	case TypeOrderPlaced, TypeOrderCancelled:
		return []Role{RoleOwner, RoleAdmin, RoleCustomer}
	case TypeProofSubmitted:
		return []Role{RoleOwner, RoleAdmin}
	case TypePaymentApproved, TypeOrderDelivered:
		return []Role{RoleOwner, RoleCustomer}
	case TypePaymentRejected, TypeOrderShipped:
		return []Role{RoleCustomer}
	}
	return nil
}

// PriorityOf ranks events that need a human decision or explain one above the rest.
func PriorityOf(t Type) Priority {
	switch t {
	case TypeProofSubmitted, TypePaymentApproved, TypePaymentRejected:
		return PriorityHigh
	}
	return PriorityNormal
}

type Recipient struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Target is one (recipient, channel) pair of the fanout.
type Target struct {
	Recipient Recipient
	Channel   Channel
}

// Event is one notification to fan out. Payload carries the type tag.
type Event struct {
	ID         string
	Type       Type
	Priority   Priority
	OrderID    string
	StoreID    string
	Targets    []Target
	Payload    Payload
	OccurredAt time.Time
}

// NewEvent validates the payload and derives type and priority from it.
func NewEvent(id, orderID, storeID string, payload Payload, targets []Target, at time.Time) (Event, error) {
	if id == "" || orderID == "" {
		return Event{}, fmt.Errorf("%w: id and order id are required", ErrInvalidEvent)
	}
	if payload == nil {
		return Event{}, fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	if err := payload.validate(); err != nil {
		return Event{}, err
	}
	for _, t := range targets {
		if t.Recipient.ID == "" || t.Channel == "" {
			return Event{}, fmt.Errorf("%w: empty target", ErrInvalidEvent)
		}
	}
	return Event{
		ID:         id,
		Type:       payload.Type(),
		Priority:   PriorityOf(payload.Type()),
		OrderID:    orderID,
		StoreID:    storeID,
		Targets:    append([]Target(nil), targets...),
		Payload:    payload,
		OccurredAt: at.UTC(),
	}, nil
}

// Message is the per-recipient envelope handed to a Sender.
type Message struct {
	EventID    string    `json:"event_id"`
	Type       Type      `json:"type"`
	Priority   Priority  `json:"priority"`
	OrderID    string    `json:"order_id"`
	StoreID    string    `json:"store_id"`
	Recipient  Recipient `json:"recipient"`
	Payload    Payload   `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) MessageFor(r Recipient) Message {
	return Message{
		EventID:    e.ID,
		Type:       e.Type,
		Priority:   e.Priority,
		OrderID:    e.OrderID,
		StoreID:    e.StoreID,
		Recipient:  r,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt,
	}
}
