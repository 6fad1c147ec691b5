package scheduling

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", conflictf("slot %s taken", "x"))

	if KindOf(err) != KindConflict {
		t.Fatalf("KindOf = %s", KindOf(err))
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("errors.Is(err, ErrConflict) = false")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("conflict matched ErrValidation")
	}
	if MessageOf(err) != "slot x taken" {
		t.Fatalf("MessageOf = %q", MessageOf(err))
	}

	plain := errors.New("boom")
	if KindOf(plain) != KindStorage || MessageOf(plain) != "internal error" {
		t.Fatalf("untyped errors should be storage failures")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &Error{Kind: KindStorage, Message: "storage failure", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	if err.Error() != "storage failure: cause" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if (&Error{Kind: KindNotFound}).Error() != "not_found" {
		t.Fatalf("kind should stand in for an empty message")
	}
}
