package order

import (
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice           = errors.New("order: unit price must be zero or greater")
	ErrInvalidCurrency        = errors.New("order: currency must be a 3-letter code")
	ErrProductRequired        = errors.New("order: product id is required")
)

type Status string

const (
	StatusPendingAdmin Status = "PENDING_ADMIN"
	StatusPaid         Status = "PAID"
	StatusShipped      Status = "SHIPPED"
	StatusDelivered    Status = "DELIVERED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
)

// Valid reports whether s belongs to the transition graph.
func (s Status) Valid() bool {
	return stateFor(s) != nil
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusRejected || s == StatusCancelled
}

// Item is one order line. UnitPrice is frozen at order time.
type Item struct {
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the item subtotals.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

type Order struct {
	ID               string
	StoreID          string
	CustomerID       string
	Items            []Item
	Status           Status
	Currency         string
	TotalAmount      decimal.Decimal
	TrackingNumber   string
	RejectionReason  string
	CancelReason     string
	Proof            *payment.Proof
	StockDecremented bool
	IdempotencyKey   string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type NewParams struct {
	ID             string
	StoreID        string
	CustomerID     string
	Currency       string
	IdempotencyKey string
	Items          []Item
	Now            time.Time
}

// New validates p and returns an order in PENDING_ADMIN.
func New(p NewParams) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrNoItems
	}
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, ErrProductRequired
		}
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if it.UnitPrice.IsNegative() {
			return nil, ErrInvalidPrice
		}
		items = append(items, it)
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if !validCurrency(currency) {
		return nil, ErrInvalidCurrency
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Order{
		ID:             p.ID,
		StoreID:        p.StoreID,
		CustomerID:     p.CustomerID,
		Items:          items,
		Status:         StatusPendingAdmin,
		Currency:       currency,
		TotalAmount:    Total(items),
		IdempotencyKey: p.IdempotencyKey,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so repositories never share mutable state with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.Proof = o.Proof.Clone()
	return &c
}

// Apply runs one transition through the state graph. It returns false with
// a nil error when the transition is an idempotent no-op.
func (o *Order) Apply(t Trigger, now time.Time) (bool, error) {
	current := stateFor(o.Status)
	if current == nil {
		return false, ErrInvalidStateTransition
	}
	var (
		next OrderState
		err  error
	)
	switch t.Action {
	case ActionApprove:
		next, err = current.OnApprove(o)
	case ActionReject:
		next, err = current.OnReject(o, t.Reason)
	case ActionShip:
		next, err = current.OnShip(o, t.TrackingNumber)
	case ActionDeliver:
		next, err = current.OnDeliver(o)
	case ActionCancel, ActionCancelOwn:
		next, err = current.OnCancel(o, t.Reason)
	default:
		return false, ErrInvalidStateTransition
	}
	if err != nil {
		return false, err
	}
	if next.Status() == o.Status {
		return false, nil
	}
	o.Status = next.Status()
	o.touch(now)
	return true, nil
}

// MarkStockDecremented and MarkStockRestored track the ledger flag.
func (o *Order) MarkStockDecremented() { o.StockDecremented = true }

func (o *Order) MarkStockRestored() { o.StockDecremented = false }

// AttachProof stores p, replacing any undecided proof. It reports whether one was replaced.
func (o *Order) AttachProof(p payment.Proof, now time.Time) (bool, error) {
	if o.Status != StatusPendingAdmin {
		return false, ErrInvalidStateTransition
	}
	replaced := o.Proof != nil
	o.Proof = &p
	o.touch(now)
	return replaced, nil
}

func (o *Order) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	o.UpdatedAt = now.UTC()
}
