package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:       http.StatusBadRequest,
		KindInvalidArgument:  http.StatusBadRequest,
		KindNotFound:         http.StatusNotFound,
		KindConflict:         http.StatusConflict,
		KindNoOwnerAvailable: http.StatusUnprocessableEntity,
		KindRateLimited:      http.StatusTooManyRequests,
		KindInternal:         http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := k.Status(); got != want {
			t.Fatalf("%s: expected %d, got %d", k, want, got)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("resolve device: %w", NotFound("device not found"))
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
	if !errors.Is(err, NotFound("")) {
		t.Fatalf("expected errors.Is to match on kind")
	}
	if errors.Is(err, Validation("")) {
		t.Fatalf("did not expect validation match")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("plain errors should be internal")
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("query readings", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
	if err.Error() != "query readings: connection refused" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
