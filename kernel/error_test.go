package kernel

import "testing"

func TestErrorImplementsErrorInterface(t *testing.T) {
	specs := []struct {
		module  string
		message string
	}{
		{"pmm", "out of physical memory"},
		{"vmm", "page table allocation failed"},
		{"slab_lookup", "bootstrap table cannot grow"},
	}

	for specIndex, spec := range specs {
		var err error = &Error{Module: spec.module, Message: spec.message}
		if got := err.Error(); got != spec.message {
			t.Fatalf("[spec %d] expected Error() to return %q; got %q", specIndex, spec.message, got)
		}
	}
}

func TestErrorPointerIdentity(t *testing.T) {
	// Errors are compared by pointer so two values with identical contents
	// must still be distinguishable.
	err1 := &Error{Module: "pmm", Message: "out of physical memory"}
	err2 := &Error{Module: "pmm", Message: "out of physical memory"}

	if err1 == err2 {
		t.Fatal("expected distinct error values to have distinct identities")
	}

	var err error = err1
	if err != err1 {
		t.Fatal("expected the interface value to preserve the error's identity")
	}
}
