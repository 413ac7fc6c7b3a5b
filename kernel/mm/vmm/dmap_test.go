package vmm

import (
	"testing"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

// resetDmapState returns the package globals touched by the direct map tests
// to their boot values.
func resetDmapState() {
	kernelCtx = nil
	dmapReady = false
	dmapPhysBase = 0
	dmapPhysEnd = 0
}

func TestCreateDirectMap(t *testing.T) {
	defer func(origProbe func(uintptr) *uint64, origSetMapper func(mm.PhysMapFn)) {
		dmapProbeFn = origProbe
		setPhysMapperFn = origSetMapper
		resetDmapState()
	}(dmapProbeFn, setPhysMapperFn)
	resetDmapState()

	_, teardown := newTestPhysMem(testPhysBase, 64)
	defer teardown()

	// No MMU backs the direct map window under test so the self-test
	// probe is redirected to a local word and the window switch is
	// captured instead of applied.
	var (
		probeWord      uint64
		mapperSwitched bool
	)
	dmapProbeFn = func(virtAddr uintptr) *uint64 {
		if virtAddr != dmapVirtBase {
			t.Errorf("expected self-test probe at 0x%x; got 0x%x", dmapVirtBase, virtAddr)
		}
		return &probeWord
	}
	setPhysMapperFn = func(fn mm.PhysMapFn) { mapperSwitched = true }

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	// Two regions; the direct map must cover their combined span.
	regions := []mm.MemRegion{
		{Base: uint64(testPhysBase) + uint64(16<<mm.PageShift), Size: uint64(8 << mm.PageShift)},
		{Base: uint64(testPhysBase), Size: uint64(8 << mm.PageShift)},
	}

	if err := CreateDirectMap(regions); err != nil {
		t.Fatal(err)
	}

	if !DmapReady() {
		t.Fatal("expected direct map to be ready")
	}
	if probeWord != dmapSelfTestPattern {
		t.Fatalf("expected self-test pattern 0x%x to be written; got 0x%x", dmapSelfTestPattern, probeWord)
	}
	if !mapperSwitched {
		t.Fatal("expected the physical access window to be switched")
	}

	// The whole span, including the gap between the regions, is mapped.
	spanPages := uintptr(24)
	for offset := uintptr(0); offset < spanPages<<mm.PageShift; offset += mm.PageSize {
		if !IsMapped(kernelCtx, dmapVirtBase+offset) {
			t.Fatalf("expected direct map offset 0x%x to be mapped", offset)
		}
	}

	// Phys-to-virt and virt-to-phys round trips.
	specs := []struct {
		physAddr uintptr
		expVirt  uintptr
		expOK    bool
	}{
		{testPhysBase, dmapVirtBase, true},
		{testPhysBase + 5<<mm.PageShift + 0x123, dmapVirtBase + 5<<mm.PageShift + 0x123, true},
		{testPhysBase + spanPages<<mm.PageShift - 1, dmapVirtBase + spanPages<<mm.PageShift - 1, true},
		{testPhysBase + spanPages<<mm.PageShift, 0, false},
		{testPhysBase - 1, 0, false},
	}
	for specIndex, spec := range specs {
		virtAddr, ok := PhysToDmap(spec.physAddr)
		if ok != spec.expOK || virtAddr != spec.expVirt {
			t.Errorf("[spec %d] expected PhysToDmap(0x%x) to return (0x%x, %t); got (0x%x, %t)",
				specIndex, spec.physAddr, spec.expVirt, spec.expOK, virtAddr, ok)
		}

		if !spec.expOK {
			continue
		}

		physAddr, ok := DmapToPhys(virtAddr)
		if !ok || physAddr != spec.physAddr {
			t.Errorf("[spec %d] expected DmapToPhys(0x%x) to return (0x%x, true); got (0x%x, %t)",
				specIndex, virtAddr, spec.physAddr, physAddr, ok)
		}
	}

	// The ready transition happens exactly once.
	if err := CreateDirectMap(regions); err != errDmapDoubleInit {
		t.Fatalf("expected errDmapDoubleInit; got %v", err)
	}
}

func TestCreateDirectMapErrors(t *testing.T) {
	defer func(origSetMapper func(mm.PhysMapFn)) {
		setPhysMapperFn = origSetMapper
		resetDmapState()
	}(setPhysMapperFn)
	resetDmapState()

	regions := []mm.MemRegion{
		{Base: uint64(testPhysBase), Size: uint64(8 << mm.PageShift)},
	}

	// The kernel context must exist before the direct map can be built.
	if err := CreateDirectMap(regions); err != errDmapNoContext {
		t.Fatalf("expected errDmapNoContext; got %v", err)
	}

	_, teardown := newTestPhysMem(testPhysBase, 2)
	defer teardown()

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	if err := CreateDirectMap(nil); err != errDmapNoRegions {
		t.Fatalf("expected errDmapNoRegions; got %v", err)
	}

	// With the arena exhausted the table pages for the window cannot be
	// allocated.
	if err := CreateDirectMap(regions); err != errDmapMapFailed {
		t.Fatalf("expected errDmapMapFailed; got %v", err)
	}

	if DmapReady() {
		t.Fatal("expected direct map to stay not ready after failures")
	}

	if _, ok := PhysToDmap(testPhysBase); ok {
		t.Fatal("expected PhysToDmap to fail while the direct map is not ready")
	}
	if _, ok := DmapToPhys(dmapVirtBase); ok {
		t.Fatal("expected DmapToPhys to fail while the direct map is not ready")
	}
}
