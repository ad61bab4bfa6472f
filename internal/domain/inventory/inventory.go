package inventory

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrProductRequired   = errors.New("inventory: product id is required")
)

const (
	FailureReasonNotFound          = "not_found"
	FailureReasonInsufficientStock = "insufficient_stock"
)

// Key identifies one stock row: the product id, optionally suffixed with ":variant".
type Key string

func KeyOf(productID, variantID string) Key {
	if variantID == "" {
		return Key(productID)
	}
	return Key(productID + ":" + variantID)
}

// Split returns the product and variant parts of k.
func (k Key) Split() (productID, variantID string) {
	product, variant, _ := strings.Cut(string(k), ":")
	return product, variant
}

type Stock struct {
	Key       Key
	ProductID string
	VariantID string
	Quantity  int
	Version   int64
	UpdatedAt time.Time
}

func NewStock(productID, variantID string, quantity int, now time.Time) (*Stock, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, ErrProductRequired
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Stock{
		Key:       KeyOf(productID, variantID),
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
		UpdatedAt: now.UTC(),
	}, nil
}

// Deduct removes quantity if enough is on hand.
func (s *Stock) Deduct(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > s.Quantity {
		return ErrInsufficientStock
	}
	s.Quantity -= quantity
	s.touch(now)
	return nil
}

func (s *Stock) Restock(quantity int, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.Quantity += quantity
	s.touch(now)
	return nil
}

func (s *Stock) touch(now time.Time) {
	s.Version++
	s.UpdatedAt = now.UTC()
}
