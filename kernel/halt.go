package kernel

import "github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"

// haltFn is mocked by tests; on a real system it parks the CPU in an
// interrupt-wait loop and never returns.
var haltFn = func() {
	for {
	}
}

// Halt prints the supplied error (if not nil) and parks the CPU. It is
// reserved for unrecoverable bootstrap failures where no forward progress is
// possible without the structure whose setup just failed. Calls to Halt never
// return.
func Halt(err *Error) {
	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** system halted ***\n")
	kfmt.Printf("-----------------------------------\n")

	haltFn()
}
