package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("approve: %w", WithMetadata(CodeInsufficientStock, "product p-1 short", map[string]string{"product_id": "p-1"}))

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected wrapped error to match ErrInsufficientStock")
	}
	if errors.Is(err, ErrStaleState) {
		t.Fatalf("did not expect match on a different code")
	}
	if got := CodeOf(err); got != CodeInsufficientStock {
		t.Fatalf("expected code %s, got %s", CodeInsufficientStock, got)
	}
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("expected INTERNAL, got %s", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil, got %s", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, "persist order", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if err.Error() != "persist order: disk full" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeInvalidTransition: http.StatusConflict,
		CodeStaleState:        http.StatusConflict,
		CodeInsufficientStock: http.StatusUnprocessableEntity,
		CodePermissionDenied:  http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}
