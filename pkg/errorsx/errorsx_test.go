package errorsx

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapAndReason(t *testing.T) {
	err := Wrap(assertErr{}, ReasonModelGateway)
	if Reason(err) != ReasonModelGateway {
		t.Fatalf("expected reason %s, got %s", ReasonModelGateway, Reason(err))
	}
	if !HasReason(err, ReasonModelGateway) {
		t.Fatalf("expected HasReason true")
	}
}

func TestWrapPreservesExistingReason(t *testing.T) {
	first := Wrap(assertErr{}, ReasonUnknownTool)
	second := Wrap(fmt.Errorf("dispatch: %w", first), ReasonToolExecution)
	if Reason(second) != ReasonUnknownTool {
		t.Fatalf("expected reason preserved, got %s", Reason(second))
	}
	if !errors.Is(second, first) {
		t.Fatalf("expected wrapped chain to contain original")
	}
}

func TestTextPrefixesReason(t *testing.T) {
	err := New(ReasonArgumentMismatch, "missing: %s", "num2")
	if got := Text(err); got != "argument_mismatch: missing: num2" {
		t.Fatalf("unexpected text %q", got)
	}
	if Text(nil) != "" {
		t.Fatalf("expected empty text for nil")
	}
}

func TestRecoverable(t *testing.T) {
	for _, r := range []ReasonCode{ReasonUnknownTool, ReasonMalformedArguments, ReasonArgumentMismatch, ReasonToolExecution} {
		if !r.Recoverable() {
			t.Fatalf("expected %s recoverable", r)
		}
	}
	if ReasonModelGateway.Recoverable() {
		t.Fatalf("gateway failures must not be recoverable")
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
