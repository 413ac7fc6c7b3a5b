package pmm

import (
	"testing"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

func TestBootMemAllocator(t *testing.T) {
	var alloc bootMemAllocator
	regions := []mm.MemRegion{
		{Base: 0x100000, Size: 4 << mm.PageShift},
		{Base: 0x400000, Size: 4 << mm.PageShift},
	}

	// The kernel image occupies the first two frames of region 0.
	alloc.init(0x102000, regions)

	if !alloc.initialized {
		t.Fatal("expected allocator to be flagged as initialized")
	}
	if exp := int64(0x102); alloc.kernelEndFrame != exp {
		t.Fatalf("expected kernel end frame 0x%x; got 0x%x", exp, alloc.kernelEndFrame)
	}

	// Single frame allocations start above the kernel image and advance
	// the watermark.
	specs := []mm.Frame{0x102, 0x103, 0x400, 0x401, 0x402, 0x403}
	for specIndex, expFrame := range specs {
		frame, ok := alloc.allocFrame()
		if !ok {
			t.Fatalf("[spec %d] expected allocation to succeed", specIndex)
		}
		if frame != expFrame {
			t.Fatalf("[spec %d] expected frame 0x%x; got 0x%x", specIndex, expFrame, frame)
		}
	}

	// Both regions are now exhausted.
	if _, ok := alloc.allocFrame(); ok {
		t.Fatal("expected allocation to fail when all regions are exhausted")
	}

	if exp := uint64(6); alloc.allocCount != exp {
		t.Fatalf("expected allocCount to be %d; got %d", exp, alloc.allocCount)
	}
}

func TestBootMemAllocatorRuns(t *testing.T) {
	var alloc bootMemAllocator
	regions := []mm.MemRegion{
		{Base: 0x100000, Size: 4 << mm.PageShift},
		{Base: 0x400000, Size: 8 << mm.PageShift},
	}

	alloc.init(0x101000, regions)

	// A run that does not fit in the space left in region 0 jumps the
	// watermark to region 1 instead of spanning the gap.
	frame, ok := alloc.allocRun(4)
	if !ok {
		t.Fatal("expected run allocation to succeed")
	}
	if exp := mm.Frame(0x400); frame != exp {
		t.Fatalf("expected run to start at frame 0x%x; got 0x%x", exp, frame)
	}

	// The next run continues above the watermark.
	frame, ok = alloc.allocRun(4)
	if !ok {
		t.Fatal("expected second run allocation to succeed")
	}
	if exp := mm.Frame(0x404); frame != exp {
		t.Fatalf("expected second run to start at frame 0x%x; got 0x%x", exp, frame)
	}

	// No region can host a run this big.
	if _, ok = alloc.allocRun(16); ok {
		t.Fatal("expected oversized run allocation to fail")
	}
}
