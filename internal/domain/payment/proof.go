package payment

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMethodRequired   = errors.New("payment: method is required")
	ErrInvalidAmount    = errors.New("payment: amount must be greater than zero")
	ErrCurrencyRequired = errors.New("payment: currency is required")
	ErrImagesRequired   = errors.New("payment: at least one image reference is required")
)

// ProofInput is the raw customer submission.
type ProofInput struct {
	Method        string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	ImageURLs     []string
}

// Proof is the evidence of payment attached to an order.
// VerifiedBy and VerifiedAt are only set once an admin decides.
type Proof struct {
	Method        string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	ImageURLs     []string
	SubmittedAt   time.Time
	VerifiedBy    string
	VerifiedAt    *time.Time
}

// NewProof validates in and stamps the submission time.
func NewProof(in ProofInput, now time.Time) (Proof, error) {
	method := strings.TrimSpace(in.Method)
	if method == "" {
		return Proof{}, ErrMethodRequired
	}
	if !in.Amount.IsPositive() {
		return Proof{}, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		return Proof{}, ErrCurrencyRequired
	}
	images := make([]string, 0, len(in.ImageURLs))
	for _, u := range in.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			images = append(images, u)
		}
	}
	if len(images) == 0 {
		return Proof{}, ErrImagesRequired
	}
	return Proof{
		Method:        method,
		TransactionID: strings.TrimSpace(in.TransactionID),
		Amount:        in.Amount,
		Currency:      currency,
		ImageURLs:     images,
		SubmittedAt:   now.UTC(),
	}, nil
}

// Decided reports whether an admin already verified or rejected the proof.
func (p *Proof) Decided() bool {
	return p != nil && p.VerifiedAt != nil
}

// MarkVerified records the deciding admin.
func (p *Proof) MarkVerified(actorID string, at time.Time) {
	t := at.UTC()
	p.VerifiedBy = actorID
	p.VerifiedAt = &t
}

func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	c := *p
	c.ImageURLs = append([]string(nil), p.ImageURLs...)
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}
