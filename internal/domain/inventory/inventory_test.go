package inventory

import (
	"errors"
	"testing"
	"time"
)

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()

	if k := KeyOf("p-1", ""); k != "p-1" {
		t.Fatalf("key = %s", k)
	}
	k := KeyOf("p-1", "xl")
	if k != "p-1:xl" {
		t.Fatalf("key = %s", k)
	}
	if p, v := k.Split(); p != "p-1" || v != "xl" {
		t.Fatalf("split = %s %s", p, v)
	}
}

func TestStockDeductRestock(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStock("p-1", "", 5, now)
	if err != nil {
		t.Fatalf("new stock: %v", err)
	}
	if err := s.Deduct(6, now); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("deduct 6: %v", err)
	}
	if s.Quantity != 5 || s.Version != 0 {
		t.Fatalf("failed deduct mutated stock: %+v", s)
	}
	if err := s.Deduct(5, now); err != nil {
		t.Fatalf("deduct 5: %v", err)
	}
	if err := s.Restock(2, now); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if s.Quantity != 2 || s.Version != 2 {
		t.Fatalf("unexpected %+v", s)
	}
	if err := s.Deduct(0, now); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("deduct 0: %v", err)
	}
	if _, err := NewStock("p", "", -1, now); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("negative stock: %v", err)
	}
}

func TestNewStockValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewStock("  ", "red", 1, time.Now()); !errors.Is(err, ErrProductRequired) {
		t.Fatalf("blank product err = %v", err)
	}
	if _, err := NewStock("p-1", "", -1, time.Now()); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("negative quantity err = %v", err)
	}
}
