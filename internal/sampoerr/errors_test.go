package sampoerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesSentinel(t *testing.T) {
	err := New(KindUnknownPackage, "npm/left-pad").WithFile("changesets/x.md")
	if !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("expected errors.Is to match ErrUnknownPackage")
	}
	if errors.Is(err, ErrAmbiguousPackage) {
		t.Fatalf("did not expect match against a different sentinel")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := Wrap(KindIO, "writing manifest", cause)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected errors.Is to match ErrIO")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to unwrap to cause")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := New(KindConstraintViolated, "requirement not satisfied").
		WithPackage("cargo/app").
		WithFile("Cargo.toml")
	got := err.Error()
	if got != "Cargo.toml: cargo/app: requirement not satisfied" {
		t.Fatalf("unexpected message: %s", got)
	}
}
