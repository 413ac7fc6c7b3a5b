package mm

import "unsafe"

// PhysMapFn converts a physical address into a pointer that the kernel can
// dereference. Which window backs the conversion depends on the boot phase.
type PhysMapFn func(physAddr uintptr) unsafe.Pointer

// physMapper holds the currently active physical access window. During early
// boot this is an identity window provided by the boot page tables; once the
// direct map passes its self-test the vmm package swaps in a constant-offset
// translation. Tests install a mapper backed by a byte-slice arena.
var physMapper PhysMapFn = func(physAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(physAddr)
}

// SetPhysMapper registers the function used to convert physical addresses
// into dereferenceable pointers. It is called exactly once by the vmm package
// when the direct map becomes ready, and by tests that simulate physical
// memory.
func SetPhysMapper(fn PhysMapFn) {
	physMapper = fn
}

// PhysToPtr converts a physical address into a pointer through the currently
// active access window. Every dereference of a physical address in the memory
// subsystems must go through this function so that the bootstrap-to-DMAP
// window switch is transparent to callers.
func PhysToPtr(physAddr uintptr) unsafe.Pointer {
	return physMapper(physAddr)
}

// PhysToAddr is a convenience wrapper returning the dereferenceable address
// for a physical address as a uintptr.
func PhysToAddr(physAddr uintptr) uintptr {
	return uintptr(physMapper(physAddr))
}
