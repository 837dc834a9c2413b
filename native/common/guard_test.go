package common

import (
	"errors"
	"testing"
)

func TestGuardHonoursPauses(t *testing.T) {
	if err := Guard(nil, "rescue"); err != nil {
		t.Fatalf("nil view should not block: %v", err)
	}
	pauses := NewPauses(map[string]bool{" Rescue ": true})
	if err := Guard(pauses, "rescue"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Set("rescue", false)
	if err := Guard(pauses, "rescue"); err != nil {
		t.Fatalf("expected resumed module, got %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module name should not block: %v", err)
	}
}
