package order

import (
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New(NewParams{
		ID:         "o-1",
		StoreID:    "s-1",
		CustomerID: "c-1",
		Currency:   "usd",
		Items: []Item{
			{ProductID: "p-a", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
			{ProductID: "p-b", VariantID: "red", Quantity: 1, UnitPrice: decimal.RequireFromString("0.02")},
		},
		Now: testNow,
	})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func TestNewComputesTotal(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t)
	if !o.TotalAmount.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("total = %s, want 40.00", o.TotalAmount)
	}
	if o.Status != StatusPendingAdmin {
		t.Fatalf("status = %s", o.Status)
	}
	if o.Currency != "USD" {
		t.Fatalf("currency = %s", o.Currency)
	}
	if o.Items[0].ProductID != "p-a" || o.Items[1].ProductID != "p-b" {
		t.Fatalf("item order not preserved: %+v", o.Items)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	price := decimal.NewFromInt(1)
	cases := []struct {
		name string
		p    NewParams
		want error
	}{
		{"no items", NewParams{Currency: "USD"}, ErrNoItems},
		{"zero quantity", NewParams{Currency: "USD", Items: []Item{{ProductID: "p", UnitPrice: price}}}, ErrInvalidQuantity},
		{"negative quantity", NewParams{Currency: "USD", Items: []Item{{ProductID: "p", Quantity: -1, UnitPrice: price}}}, ErrInvalidQuantity},
		{"negative price", NewParams{Currency: "USD", Items: []Item{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}}, ErrInvalidPrice},
		{"missing product", NewParams{Currency: "USD", Items: []Item{{Quantity: 1, UnitPrice: price}}}, ErrProductRequired},
		{"bad currency", NewParams{Currency: "US1", Items: []Item{{ProductID: "p", Quantity: 1, UnitPrice: price}}}, ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.p); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestApplyTransitionTable(t *testing.T) {
	t.Parallel()

	all := []Status{StatusPendingAdmin, StatusPaid, StatusShipped, StatusDelivered, StatusRejected, StatusCancelled}
	actions := []Action{ActionApprove, ActionReject, ActionShip, ActionDeliver, ActionCancel, ActionCancelOwn}
	allowed := map[Status]map[Action]Status{
		StatusPendingAdmin: {ActionApprove: StatusPaid, ActionReject: StatusRejected, ActionCancel: StatusCancelled, ActionCancelOwn: StatusCancelled},
		StatusPaid:         {ActionApprove: StatusPaid, ActionShip: StatusShipped, ActionCancel: StatusCancelled, ActionCancelOwn: StatusCancelled},
		StatusShipped:      {ActionDeliver: StatusDelivered},
	}

	for _, from := range all {
		for _, action := range actions {
			o := newTestOrder(t)
			o.Status = from
			before := *o

			changed, err := o.Apply(Trigger{Action: action, Reason: "r", TrackingNumber: "TN"}, testNow.Add(time.Minute))
			want, ok := allowed[from][action]
			if !ok {
				if !errors.Is(err, ErrInvalidStateTransition) {
					t.Fatalf("%s/%s: err = %v, want invalid transition", from, action, err)
				}
				if o.Status != before.Status || o.StockDecremented != before.StockDecremented || !o.UpdatedAt.Equal(before.UpdatedAt) {
					t.Fatalf("%s/%s: order mutated on rejected transition", from, action)
				}
				continue
			}
			if err != nil {
				t.Fatalf("%s/%s: unexpected err %v", from, action, err)
			}
			if o.Status != want {
				t.Fatalf("%s/%s: status = %s, want %s", from, action, o.Status, want)
			}
			if changed != (want != from) {
				t.Fatalf("%s/%s: changed = %v", from, action, changed)
			}
		}
	}
}

func TestApplyRecordsReasonsAndTracking(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t)
	if _, err := o.Apply(Trigger{Action: ActionReject, Reason: " unreadable receipt "}, testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if o.RejectionReason != "unreadable receipt" {
		t.Fatalf("reason = %q", o.RejectionReason)
	}

	o = newTestOrder(t)
	o.Status = StatusPaid
	if _, err := o.Apply(Trigger{Action: ActionShip, TrackingNumber: "TRK-1"}, testNow); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if o.TrackingNumber != "TRK-1" {
		t.Fatalf("tracking = %q", o.TrackingNumber)
	}
}

func TestAttachProofReplacesAndGuardsStatus(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t)
	p1 := payment.Proof{Method: "bank", ImageURLs: []string{"a"}}
	p2 := payment.Proof{Method: "cash", ImageURLs: []string{"b"}}

	replaced, err := o.AttachProof(p1, testNow)
	if err != nil || replaced {
		t.Fatalf("first attach: replaced=%v err=%v", replaced, err)
	}
	replaced, err = o.AttachProof(p2, testNow)
	if err != nil || !replaced {
		t.Fatalf("second attach: replaced=%v err=%v", replaced, err)
	}
	if o.Proof.Method != "cash" {
		t.Fatalf("latest proof should win, got %s", o.Proof.Method)
	}

	o.Status = StatusPaid
	if _, err := o.AttachProof(p1, testNow); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("attach on paid: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	o := newTestOrder(t)
	o.Proof = &payment.Proof{Method: "bank", ImageURLs: []string{"a"}}
	c := o.Clone()
	c.Items[0].Quantity = 99
	c.Proof.ImageURLs[0] = "z"
	if o.Items[0].Quantity == 99 || o.Proof.ImageURLs[0] == "z" {
		t.Fatal("clone shares state with original")
	}
}
