package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProofSubmittedEvent is emitted after a proof is stored on an order.
type ProofSubmittedEvent struct {
	OrderID    string
	StoreID    string
	CustomerID string
	Method     string
	Amount     decimal.Decimal
	Currency   string
	Replaced   bool
	OccurredAt time.Time
}

func (ProofSubmittedEvent) EventName() string { return "payment.proof_submitted" }

func (e ProofSubmittedEvent) PartitionKey() string { return e.OrderID }
