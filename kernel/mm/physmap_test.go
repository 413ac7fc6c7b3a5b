package mm

import (
	"testing"
	"unsafe"
)

func TestPhysToPtrUsesRegisteredMapper(t *testing.T) {
	defer func(origMapper PhysMapFn) {
		physMapper = origMapper
	}(physMapper)

	// The default window is an identity translation.
	var val uint64 = 0x1122334455667788
	addr := uintptr(unsafe.Pointer(&val))
	if got := *(*uint64)(PhysToPtr(addr)); got != val {
		t.Fatalf("expected identity mapper to return %x; got %x", val, got)
	}

	// Registering a mapper should redirect all conversions through it.
	buf := make([]byte, 16)
	base := uintptr(0xf000)
	SetPhysMapper(func(physAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(&buf[physAddr-base])
	})

	buf[4] = 0xab
	if got := *(*byte)(PhysToPtr(base + 4)); got != 0xab {
		t.Fatalf("expected mapped read to return 0xab; got 0x%x", got)
	}

	if exp, got := uintptr(unsafe.Pointer(&buf[4])), PhysToAddr(base+4); got != exp {
		t.Fatalf("expected PhysToAddr to return %x; got %x", exp, got)
	}
}

func TestAllocPage(t *testing.T) {
	defer func(origAlloc PageAllocFn) {
		pageAllocator = origAlloc
	}(pageAllocator)

	// With no allocator registered, AllocPage reports exhaustion.
	pageAllocator = nil
	if got := AllocPage(); got != 0 {
		t.Fatalf("expected AllocPage without a registered allocator to return 0; got %x", got)
	}

	SetPageAllocator(func() uintptr { return 0x42000 })
	if exp, got := uintptr(0x42000), AllocPage(); got != exp {
		t.Fatalf("expected AllocPage to return %x; got %x", exp, got)
	}
}
