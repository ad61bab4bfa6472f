package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlacedEvent is emitted when a new order is created.
type PlacedEvent struct {
	OrderID    string
	StoreID    string
	CustomerID string
	ItemCount  int
	Total      decimal.Decimal
	Currency   string
	OccurredAt time.Time
}

func (PlacedEvent) EventName() string { return "order.placed" }

func (e PlacedEvent) PartitionKey() string { return e.OrderID }

func NewPlacedEvent(o *Order) PlacedEvent {
	count := 0
	for _, it := range o.Items {
		count += it.Quantity
	}
	return PlacedEvent{
		OrderID:    o.ID,
		StoreID:    o.StoreID,
		CustomerID: o.CustomerID,
		ItemCount:  count,
		Total:      o.TotalAmount,
		Currency:   o.Currency,
		OccurredAt: o.CreatedAt,
	}
}

// TransitionCommittedEvent is emitted after a transition and its audit entry commit.
type TransitionCommittedEvent struct {
	OrderID        string
	StoreID        string
	CustomerID     string
	ActorID        string
	Action         Action
	From           Status
	To             Status
	Reason         string
	TrackingNumber string
	StockRestored  bool
	Total          decimal.Decimal
	Currency       string
	OccurredAt     time.Time
}

func (TransitionCommittedEvent) EventName() string { return "order.transition_committed" }

func (e TransitionCommittedEvent) PartitionKey() string { return e.OrderID }

func NewTransitionCommittedEvent(o *Order, actorID string, action Action, from Status, stockRestored bool) TransitionCommittedEvent {
	evt := TransitionCommittedEvent{
		OrderID:        o.ID,
		StoreID:        o.StoreID,
		CustomerID:     o.CustomerID,
		ActorID:        actorID,
		Action:         action,
		From:           from,
		To:             o.Status,
		TrackingNumber: o.TrackingNumber,
		StockRestored:  stockRestored,
		Total:          o.TotalAmount,
		Currency:       o.Currency,
		OccurredAt:     o.UpdatedAt,
	}
	switch o.Status {
	case StatusRejected:
		evt.Reason = o.RejectionReason
	case StatusCancelled:
		evt.Reason = o.CancelReason
	}
	return evt
}
