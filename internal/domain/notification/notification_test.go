package notification

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewEventValidatesPayload(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	targets := []Target{{Recipient: Recipient{ID: "c-1", Role: RoleCustomer}, Channel: ChannelLive}}

	if _, err := NewEvent("e-1", "o-1", "s-1", PaymentRejected{Reason: "  "}, targets, at); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("empty reason: %v", err)
	}
	if _, err := NewEvent("e-1", "o-1", "s-1", nil, targets, at); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("nil payload: %v", err)
	}
	if _, err := NewEvent("e-1", "o-1", "s-1", OrderShipped{}, []Target{{Channel: ChannelLive}}, at); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("empty target: %v", err)
	}

	evt, err := NewEvent("e-1", "o-1", "s-1", PaymentRejected{Reason: "unreadable receipt"}, targets, at)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if evt.Type != TypePaymentRejected || evt.Priority != PriorityHigh {
		t.Fatalf("type/priority = %s/%s", evt.Type, evt.Priority)
	}

	raw, err := json.Marshal(evt.MessageFor(targets[0].Recipient))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"reason":"unreadable receipt"`) || !strings.Contains(string(raw), `"type":"payment_rejected"`) {
		t.Fatalf("unexpected wire form %s", raw)
	}
}

func TestPayloadShapes(t *testing.T) {
	t.Parallel()

	valid := []Payload{
		OrderPlaced{Total: decimal.NewFromInt(10), Currency: "USD", ItemCount: 2},
		ProofSubmitted{Method: "bank", Amount: decimal.NewFromInt(10), Currency: "USD"},
		PaymentApproved{Total: decimal.NewFromInt(10), Currency: "USD"},
		PaymentRejected{Reason: "blurry"},
		OrderShipped{TrackingNumber: "T1"},
		OrderDelivered{},
		OrderCancelled{Reason: "changed mind"},
	}
	for _, p := range valid {
		if err := p.validate(); err != nil {
			t.Fatalf("%s: %v", p.Type(), err)
		}
		if len(Audience(p.Type())) == 0 {
			t.Fatalf("%s has no audience", p.Type())
		}
	}
	if err := (OrderPlaced{Currency: "USD"}).validate(); err == nil {
		t.Fatal("order placed without items should fail")
	}
	if err := (ProofSubmitted{Method: "bank", Currency: "USD"}).validate(); err == nil {
		t.Fatal("proof submitted without amount should fail")
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %s, want %s", i+1, got, w)
		}
	}
	n := RetryPolicy{}.Normalize()
	if n != DefaultRetryPolicy() {
		t.Fatalf("normalize = %+v", n)
	}
}

func TestChannelClass(t *testing.T) {
	t.Parallel()

	if ChannelLive.Class() != ClassBestEffort || ChannelMessenger.Class() != ClassPersistent {
		t.Fatal("unexpected channel classes")
	}
}
