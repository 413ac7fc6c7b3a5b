package pmm

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

// bootMemAllocator implements a rudimentary watermark allocator which is used
// while bootstrapping the bitmap allocator. It hands out frames from the
// memory regions reported at boot, skipping anything below the end of the
// kernel image.
//
// Allocations are tracked via an internal counter that contains the last
// allocated frame index. Due to the way that the allocator works, it is not
// possible to free allocated frames. Once the bitmap allocator is up, the
// frames carved out by this allocator are flagged as reserved and the
// allocator is never consulted again.
type bootMemAllocator struct {
	initialized bool

	// allocCount tracks the total number of allocated frames.
	allocCount uint64

	// lastAllocIndex tracks the last allocated frame index.
	lastAllocIndex int64

	// kernelEndFrame is the first frame past the loaded kernel image.
	// Frames below it are never handed out.
	kernelEndFrame int64

	regions     [mm.MaxMemRegions]mm.MemRegion
	regionCount int
}

// init sets up the boot memory allocator internal state and prints out the
// system memory map.
func (alloc *bootMemAllocator) init(kernelEnd uintptr, regions []mm.MemRegion) {
	alloc.lastAllocIndex = -1
	alloc.kernelEndFrame = int64((kernelEnd + mm.PageSize - 1) >> mm.PageShift)
	alloc.regionCount = copy(alloc.regions[:], regions)
	alloc.initialized = true

	kfmt.Printf("[pmm] system memory map:\n")
	var totalFree uint64
	for i := 0; i < alloc.regionCount; i++ {
		region := &alloc.regions[i]
		kfmt.Printf("[pmm]\t[0x%16x - 0x%16x], size: %10d\n", region.Base, region.Base+region.Size, region.Size)
		totalFree += region.Size
	}
	kfmt.Printf("[pmm] usable memory: %dKb; kernel image ends at frame 0x%x\n", totalFree>>10, uint64(alloc.kernelEndFrame))
}

// allocFrame reserves the next available free frame and returns its index.
// It returns false if all regions have been exhausted.
func (alloc *bootMemAllocator) allocFrame() (mm.Frame, bool) {
	frame, ok := alloc.allocRun(1)
	return frame, ok
}

// allocRun reserves count consecutive frames contained within a single memory
// region and returns the first frame of the run. The watermark design makes
// this trivial: a run either fits in the space left in the current region or
// the watermark jumps to the start of the next region.
func (alloc *bootMemAllocator) allocRun(count int64) (mm.Frame, bool) {
	for i := 0; i < alloc.regionCount; i++ {
		region := &alloc.regions[i]
		regionStartIndex := int64(region.StartFrame())
		regionEndIndex := int64(region.EndFrame())

		if regionStartIndex < alloc.kernelEndFrame {
			regionStartIndex = alloc.kernelEndFrame
		}

		// The watermark may point below, inside or past this region.
		first := regionStartIndex
		if alloc.lastAllocIndex >= first {
			first = alloc.lastAllocIndex + 1
		}

		if first+count-1 > regionEndIndex {
			continue
		}

		alloc.allocCount += uint64(count)
		alloc.lastAllocIndex = first + count - 1
		return mm.Frame(first), true
	}

	return mm.InvalidFrame, false
}
