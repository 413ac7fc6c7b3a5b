package vmm

import (
	"unsafe"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

// dmapVirtBase is the fixed virtual offset where the direct map begins. The
// address is canonical for both the ARM64 TTBR1 region and the Sv48 upper
// half.
const dmapVirtBase = uintptr(0xffff800000000000)

// dmapSelfTestPattern is written to and read back from the first mapped
// word before the direct map is declared ready.
const dmapSelfTestPattern = uint64(0xDEADBEEF12345678)

var (
	// The direct map state is monotonic: NotReady until CreateDirectMap
	// completes its self-test, Ready forever after.
	dmapReady    bool
	dmapPhysBase uintptr
	dmapPhysEnd  uintptr

	errDmapNoRegions  = &kernel.Error{Module: "vmm", Message: "direct map requires at least one memory region"}
	errDmapNoContext  = &kernel.Error{Module: "vmm", Message: "direct map requires an initialized kernel context"}
	errDmapMapFailed  = &kernel.Error{Module: "vmm", Message: "cannot map the physical span into the direct map window"}
	errDmapSelfTest   = &kernel.Error{Module: "vmm", Message: "direct map self-test pattern mismatch"}
	errDmapDoubleInit = &kernel.Error{Module: "vmm", Message: "direct map is already initialized"}

	// dmapProbeFn dereferences a direct-map virtual address during the
	// self-test. Tests override it since no MMU backs the window there.
	dmapProbeFn = func(virtAddr uintptr) *uint64 {
		return (*uint64)(unsafe.Pointer(virtAddr))
	}

	// setPhysMapperFn is used by tests to intercept the window switch.
	setPhysMapperFn = mm.SetPhysMapper
)

// CreateDirectMap maps the span [min(region.Base), max(region.Base+Size))
// across all supplied regions at dmapVirtBase with read/write
// normal-cacheable attributes, verifies the mapping with a write/read-back
// self-test and then switches the system physical access window from the
// boot identity map to the direct map. The NotReady to Ready transition
// happens exactly once.
func CreateDirectMap(regions []mm.MemRegion) *kernel.Error {
	if dmapReady {
		return errDmapDoubleInit
	}

	if kernelCtx == nil {
		return errDmapNoContext
	}

	if len(regions) == 0 {
		return errDmapNoRegions
	}

	spanStart := uintptr(regions[0].Base)
	spanEnd := uintptr(regions[0].Base + regions[0].Size)
	for i := 1; i < len(regions); i++ {
		if base := uintptr(regions[i].Base); base < spanStart {
			spanStart = base
		}
		if end := uintptr(regions[i].Base + regions[i].Size); end > spanEnd {
			spanEnd = end
		}
	}

	spanStart &= ^(mm.PageSize - 1)
	spanEnd = (spanEnd + mm.PageSize - 1) & ^(mm.PageSize - 1)

	if !MapRange(kernelCtx, dmapVirtBase, spanStart, spanEnd-spanStart, FlagWrite) {
		return errDmapMapFailed
	}

	// Write/read-back self-test at the mapped base.
	probe := dmapProbeFn(dmapVirtBase)
	*probe = dmapSelfTestPattern
	if *probe != dmapSelfTestPattern {
		return errDmapSelfTest
	}

	dmapPhysBase = spanStart
	dmapPhysEnd = spanEnd
	dmapReady = true

	// From this point on every physical dereference is an offset add, no
	// table walk.
	setPhysMapperFn(func(physAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(dmapVirtBase + (physAddr - dmapPhysBase))
	})

	kfmt.Printf("[vmm] direct map ready: phys [0x%16x - 0x%16x) at 0x%16x\n",
		uint64(spanStart), uint64(spanEnd), uint64(dmapVirtBase))

	return nil
}

// DmapReady returns true once the direct map self-test has passed.
func DmapReady() bool {
	return dmapReady
}

// PhysToDmap returns the direct-map virtual address for physAddr. It returns
// 0 and false while the direct map is not ready or when physAddr falls
// outside the mapped physical span.
func PhysToDmap(physAddr uintptr) (uintptr, bool) {
	if !dmapReady || physAddr < dmapPhysBase || physAddr >= dmapPhysEnd {
		return 0, false
	}

	return dmapVirtBase + (physAddr - dmapPhysBase), true
}

// DmapToPhys returns the physical address backing a direct-map virtual
// address. It returns 0 and false while the direct map is not ready or when
// virtAddr falls outside the direct-map window.
func DmapToPhys(virtAddr uintptr) (uintptr, bool) {
	if !dmapReady || virtAddr < dmapVirtBase || virtAddr >= dmapVirtBase+(dmapPhysEnd-dmapPhysBase) {
		return 0, false
	}

	return dmapPhysBase + (virtAddr - dmapVirtBase), true
}
