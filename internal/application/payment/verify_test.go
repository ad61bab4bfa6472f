package payment

import (
	"testing"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func TestVerifyProofKeepsFirstVerifier(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	o := &domorder.Order{Proof: &dompay.Proof{TransactionID: "t-1"}}
	verifyProof("admin-1")(o, first)
	if !o.Proof.Decided() || o.Proof.VerifiedBy != "admin-1" || !o.Proof.VerifiedAt.Equal(first) {
		t.Fatalf("proof = %+v", o.Proof)
	}

	verifyProof("admin-2")(o, later)
	if o.Proof.VerifiedBy != "admin-1" || !o.Proof.VerifiedAt.Equal(first) {
		t.Fatalf("decided proof restamped: %+v", o.Proof)
	}

	bare := &domorder.Order{}
	verifyProof("admin-1")(bare, first)
	if bare.Proof != nil {
		t.Fatalf("proof created on an order without one: %+v", bare.Proof)
	}
}
