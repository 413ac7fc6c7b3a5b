package kernel

import "testing"

func TestHalt(t *testing.T) {
	defer func(origHalt func()) {
		haltFn = origHalt
	}(haltFn)

	var haltCalled bool
	haltFn = func() {
		haltCalled = true
	}

	err := &Error{Module: "test", Message: "something broke"}
	Halt(err)

	if !haltCalled {
		t.Fatal("expected Halt to invoke the halt handler")
	}

	// A nil error should still park the CPU.
	haltCalled = false
	Halt(nil)

	if !haltCalled {
		t.Fatal("expected Halt with nil error to invoke the halt handler")
	}
}
