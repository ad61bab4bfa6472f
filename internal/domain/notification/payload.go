package notification

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Payload is the tagged variant carried by an Event. Each type has exactly one shape.
type Payload interface {
	Type() Type
	validate() error
}

type OrderPlaced struct {
	Total     decimal.Decimal `json:"total"`
	Currency  string          `json:"currency"`
	ItemCount int             `json:"item_count"`
}

func (OrderPlaced) Type() Type { return TypeOrderPlaced }

func (p OrderPlaced) validate() error {
	if p.ItemCount <= 0 || p.Currency == "" {
		return fmt.Errorf("%w: order placed needs items and currency", ErrInvalidPayload)
	}
	return nil
}

type ProofSubmitted struct {
	Method   string          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Replaced bool            `json:"replaced"`
}

func (ProofSubmitted) Type() Type { return TypeProofSubmitted }

func (p ProofSubmitted) validate() error {
	if p.Method == "" || !p.Amount.IsPositive() || p.Currency == "" {
		return fmt.Errorf("%w: proof submitted needs method, amount and currency", ErrInvalidPayload)
	}
	return nil
}

type PaymentApproved struct {
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

func (PaymentApproved) Type() Type { return TypePaymentApproved }

func (p PaymentApproved) validate() error {
	if p.Currency == "" {
		return fmt.Errorf("%w: payment approved needs currency", ErrInvalidPayload)
	}
	return nil
}

type PaymentRejected struct {
	Reason string `json:"reason"`
}

func (PaymentRejected) Type() Type { return TypePaymentRejected }

func (p PaymentRejected) validate() error {
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("%w: payment rejected needs a reason", ErrInvalidPayload)
	}
	return nil
}

type OrderShipped struct {
	TrackingNumber string `json:"tracking_number,omitempty"`
}

func (OrderShipped) Type() Type { return TypeOrderShipped }

func (OrderShipped) validate() error { return nil }

type OrderDelivered struct{}

func (OrderDelivered) Type() Type { return TypeOrderDelivered }

func (OrderDelivered) validate() error { return nil }

type OrderCancelled struct {
	Reason        string `json:"reason,omitempty"`
	StockRestored bool   `json:"stock_restored"`
}

func (OrderCancelled) Type() Type { return TypeOrderCancelled }

func (OrderCancelled) validate() error { return nil }
