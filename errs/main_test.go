package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapIsClassifiableByKind(t *testing.T) {
	err := Wrap(Topology, "node %q not found", "x")
	if !Is(err, Topology) {
		t.Error("Wrap(Topology, ...) should be Is(Topology)")
	}
	if Is(err, Protocol) {
		t.Error("Wrap(Topology, ...) should not be Is(Protocol)")
	}
}

func TestWrapPreservesMessage(t *testing.T) {
	err := Wrap(Sequencing, "Start issued while moving at %v", 3.5)
	want := "sequencing error: Start issued while moving at 3.5"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapSurvivesFurtherWrapping(t *testing.T) {
	inner := Wrap(PhysicsDivergence, "forceStop at speed %v", 1.2)
	outer := fmt.Errorf("navigateTo: %w", inner)
	if !Is(outer, PhysicsDivergence) {
		t.Error("a further %w-wrapped Wrap result should remain classifiable")
	}

	plain := errors.New("navigateTo failed: " + inner.Error())
	if Is(plain, PhysicsDivergence) {
		t.Error("a plain errors.New should not be classifiable even if its message mentions the kind")
	}
}
