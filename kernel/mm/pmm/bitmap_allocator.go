package pmm

import (
	"math/bits"
	"unsafe"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

var (
	errNoRegions       = &kernel.Error{Module: "pmm", Message: "no usable memory regions supplied"}
	errBitmapCarveFail = &kernel.Error{Module: "pmm", Message: "cannot carve frames for the allocation bitmaps"}

	// memsetFn is used by tests to intercept the zero-fill of freshly
	// allocated pages; it is automatically inlined by the compiler.
	memsetFn = kernel.Memset
)

// pool tracks used/free frames for one contiguous physical memory region. A
// set bit in the free bitmap marks an allocated frame.
type pool struct {
	// startFrame is the frame number for the first page in this pool.
	// Bitmap bit i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool.
	endFrame mm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// uses this field to skip fully allocated pools without scanning
	// their bitmaps.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool.
	freeBitmap []uint64
}

// pageCount returns the total number of frames tracked by this pool.
func (p *pool) pageCount() uint32 {
	return uint32(p.endFrame-p.startFrame) + 1
}

// contains returns true if frame belongs to this pool.
func (p *pool) contains(frame mm.Frame) bool {
	return frame >= p.startFrame && frame <= p.endFrame
}

// Stats describes the allocation counters exposed by the bitmap allocator.
type Stats struct {
	// TotalPages is the number of frames tracked across all pools.
	TotalPages uint32

	// FreePages is the number of frames currently available.
	FreePages uint32

	// ReservedPages is the number of frames carved out via ReserveRange
	// and ReservePage. Reserved frames are counted as allocated but are
	// never handed out.
	ReservedPages uint32
}

// BitmapAllocator implements the physical page manager. It tracks frame
// reservations across the boot memory regions using one free bitmap per
// region and serves single-frame and contiguous multi-frame allocations.
type BitmapAllocator struct {
	totalPages    uint32
	reservedPages uint32

	pools     [mm.MaxMemRegions]pool
	poolCount int

	// bootstrap carves the bitmap backing store out of the boot memory
	// map before the bitmaps themselves exist.
	bootstrap bootMemAllocator
}

// init bootstraps the allocator: it sizes one bitmap per supplied region,
// carves the backing frames for the bitmaps using the boot watermark
// allocator and then flags the kernel image and the carved frames as
// reserved.
func (alloc *BitmapAllocator) init(kernelEnd uintptr, regions []mm.MemRegion) *kernel.Error {
	if len(regions) == 0 || len(regions) > mm.MaxMemRegions {
		return errNoRegions
	}

	alloc.bootstrap.init(kernelEnd, regions)

	// Pass 1: size the pools and the bitmap backing store. Bitmap words
	// are 64 bits wide so each pool's bit count is rounded up accordingly.
	var bitmapWords uintptr
	for i := range regions {
		region := &regions[i]

		startFrame, endFrame := region.StartFrame(), region.EndFrame()
		if endFrame < startFrame {
			// region smaller than one page
			continue
		}

		p := &alloc.pools[alloc.poolCount]
		p.startFrame = startFrame
		p.endFrame = endFrame
		p.freeCount = p.pageCount()

		alloc.totalPages += p.freeCount
		bitmapWords += uintptr((p.pageCount() + 63) >> 6)
		alloc.poolCount++
	}

	if alloc.poolCount == 0 {
		return errNoRegions
	}

	// Carve a contiguous frame run large enough for all bitmap words and
	// overlay the per-pool bitmap slices on top of it.
	bitmapBytes := bitmapWords << 3
	bitmapFramesNeeded := int64((bitmapBytes + mm.PageSize - 1) >> mm.PageShift)
	bitmapFirstFrame, ok := alloc.bootstrap.allocRun(bitmapFramesNeeded)
	if !ok {
		return errBitmapCarveFail
	}

	bitmapAddr := bitmapFirstFrame.Address()
	memsetFn(mm.PhysToAddr(bitmapAddr), 0, uintptr(bitmapFramesNeeded)<<mm.PageShift)

	for i := 0; i < alloc.poolCount; i++ {
		p := &alloc.pools[i]
		words := uintptr((p.pageCount() + 63) >> 6)
		p.freeBitmap = unsafe.Slice((*uint64)(mm.PhysToPtr(bitmapAddr)), words)
		bitmapAddr += words << 3
	}

	// Flag exactly what was handed out so far as reserved: the kernel
	// image frames and the run carved for the bitmaps. Frames the
	// watermark skipped when the run spilled into the next region were
	// never handed out and stay free.
	for i := 0; i < alloc.poolCount; i++ {
		p := &alloc.pools[i]
		for frame := p.startFrame; int64(frame) < alloc.bootstrap.kernelEndFrame && frame <= p.endFrame; frame++ {
			alloc.reserveFrame(frame)
		}
	}
	for n := int64(0); n < bitmapFramesNeeded; n++ {
		alloc.reserveFrame(bitmapFirstFrame + mm.Frame(n))
	}

	kfmt.Printf("[pmm] bitmap allocator ready: %d pools, %d pages (%d reserved)\n",
		alloc.poolCount, alloc.totalPages, alloc.reservedPages)

	return nil
}

// poolForFrame returns the pool that contains frame or nil if the frame falls
// outside every tracked region.
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) *pool {
	for i := 0; i < alloc.poolCount; i++ {
		if alloc.pools[i].contains(frame) {
			return &alloc.pools[i]
		}
	}

	return nil
}

// isAllocated returns true if the bitmap bit for frame is set.
func (p *pool) isAllocated(frame mm.Frame) bool {
	bit := uint32(frame - p.startFrame)
	return p.freeBitmap[bit>>6]&(1<<(63-(bit&63))) != 0
}

// markAllocated sets the bitmap bit for frame and updates the pool counters.
func (p *pool) markAllocated(frame mm.Frame) {
	bit := uint32(frame - p.startFrame)
	p.freeBitmap[bit>>6] |= 1 << (63 - (bit & 63))
	p.freeCount--
}

// markFree clears the bitmap bit for frame and updates the pool counters.
func (p *pool) markFree(frame mm.Frame) {
	bit := uint32(frame - p.startFrame)
	p.freeBitmap[bit>>6] &^= 1 << (63 - (bit & 63))
	p.freeCount++
}

// reserveFrame marks frame as allocated and counts it towards the reserved
// page statistics. Frames that are already allocated are not counted twice.
func (alloc *BitmapAllocator) reserveFrame(frame mm.Frame) {
	p := alloc.poolForFrame(frame)
	if p == nil || p.isAllocated(frame) {
		return
	}

	p.markAllocated(frame)
	alloc.reservedPages++
}

// AllocPage reserves the first free frame found while scanning the pools in
// registration order, zero-fills its contents and returns its physical
// address. It returns 0 when all pools are exhausted; callers must check for
// it.
func (alloc *BitmapAllocator) AllocPage() uintptr {
	for i := 0; i < alloc.poolCount; i++ {
		p := &alloc.pools[i]
		if p.freeCount == 0 {
			continue
		}

		for wordIndex, word := range p.freeBitmap {
			if word == ^uint64(0) {
				continue
			}

			bit := uint32(bits.LeadingZeros64(^word))
			frame := p.startFrame + mm.Frame(wordIndex<<6) + mm.Frame(bit)
			if frame > p.endFrame {
				// free bits past endFrame are bitmap padding
				break
			}

			p.markAllocated(frame)
			memsetFn(mm.PhysToAddr(frame.Address()), 0, mm.PageSize)
			return frame.Address()
		}
	}

	return 0
}

// AllocPages reserves a run of count contiguous free frames contained within
// a single pool, zero-fills the run and returns the physical address of its
// first frame. Runs never span two pools. It returns 0 when no pool holds a
// large enough run.
func (alloc *BitmapAllocator) AllocPages(count int) uintptr {
	if count <= 0 {
		kfmt.Printf("[pmm] AllocPages: invalid page count %d\n", count)
		return 0
	} else if count == 1 {
		return alloc.AllocPage()
	}

	for i := 0; i < alloc.poolCount; i++ {
		p := &alloc.pools[i]
		if p.freeCount < uint32(count) {
			continue
		}

		var runLen int
		var runStart mm.Frame
		for frame := p.startFrame; frame <= p.endFrame; frame++ {
			if p.isAllocated(frame) {
				runLen = 0
				continue
			}

			if runLen == 0 {
				runStart = frame
			}
			if runLen++; runLen == count {
				for f := runStart; f <= frame; f++ {
					p.markAllocated(f)
				}
				memsetFn(mm.PhysToAddr(runStart.Address()), 0, uintptr(count)<<mm.PageShift)
				return runStart.Address()
			}
		}
	}

	return 0
}

// FreePage releases the frame that contains addr. Freeing a frame that is
// already free or that falls outside every tracked region is a no-op so that
// double frees cannot corrupt the pool counters.
func (alloc *BitmapAllocator) FreePage(addr uintptr) {
	frame := mm.FrameFromAddress(addr)

	p := alloc.poolForFrame(frame)
	if p == nil {
		kfmt.Printf("[pmm] FreePage: address 0x%x outside any region\n", addr)
		return
	}

	if !p.isAllocated(frame) {
		// double free; explicitly ignored
		return
	}

	p.markFree(frame)
}

// FreePages releases a run of count frames starting at the frame that
// contains addr. Each frame is released with FreePage semantics.
func (alloc *BitmapAllocator) FreePages(addr uintptr, count int) {
	for frame := mm.FrameFromAddress(addr); count > 0; count, frame = count-1, frame+1 {
		alloc.FreePage(frame.Address())
	}
}

// ReserveRange marks every frame overlapping [base, base+size) as reserved.
// It is used at boot to carve out the kernel image, boot page tables and the
// device-tree blob before any caller-visible allocation happens. Frames that
// are already allocated are left untouched so the accounting is never applied
// twice.
func (alloc *BitmapAllocator) ReserveRange(base, size uintptr) {
	if size == 0 {
		return
	}

	lastFrame := mm.FrameFromAddress(base + size - 1)
	for frame := mm.FrameFromAddress(base); frame <= lastFrame; frame++ {
		alloc.reserveFrame(frame)
	}
}

// ReservePage marks the frame that contains addr as reserved.
func (alloc *BitmapAllocator) ReservePage(addr uintptr) {
	alloc.reserveFrame(mm.FrameFromAddress(addr))
}

// IsAvailable returns true if the frame containing addr belongs to a tracked
// region and is currently free.
func (alloc *BitmapAllocator) IsAvailable(addr uintptr) bool {
	frame := mm.FrameFromAddress(addr)

	p := alloc.poolForFrame(frame)
	if p == nil {
		return false
	}

	return !p.isAllocated(frame)
}

// Stats returns the current allocation counters.
func (alloc *BitmapAllocator) Stats() Stats {
	var free uint32
	for i := 0; i < alloc.poolCount; i++ {
		free += alloc.pools[i].freeCount
	}

	return Stats{
		TotalPages:    alloc.totalPages,
		FreePages:     free,
		ReservedPages: alloc.reservedPages,
	}
}
