// Package pmm implements the physical page manager. It tracks the usable
// physical memory regions reported at boot with one allocation bitmap per
// region and serves page-granularity allocations to every other kernel
// subsystem.
//
// The manager bootstraps itself with a watermark allocator: the bitmap
// backing store is carved directly out of the boot memory map before the
// bitmaps exist, and the carved frames are retroactively flagged as reserved
// once they do.
package pmm

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

// frameAllocator is the BitmapAllocator instance that serves as the primary
// allocator for reserving pages.
var frameAllocator BitmapAllocator

// Init sets up the kernel physical memory allocation sub-system using the
// supplied memory region list and the end address of the loaded kernel image.
// On success the bitmap allocator is registered as the system page source.
func Init(kernelEnd uintptr, regions []mm.MemRegion) *kernel.Error {
	frameAllocator = BitmapAllocator{}
	if err := frameAllocator.init(kernelEnd, regions); err != nil {
		return err
	}

	mm.SetPageAllocator(allocPage)
	return nil
}

// allocPage delegates a page allocation request to the bitmap allocator
// instance. This function is passed to mm.SetPageAllocator instead of
// frameAllocator.AllocPage; the latter confuses the compiler's escape
// analysis into thinking that frameAllocator escapes to the heap.
func allocPage() uintptr {
	return frameAllocator.AllocPage()
}

// AllocPage reserves a single zero-filled page and returns its physical
// address or 0 on exhaustion.
func AllocPage() uintptr { return frameAllocator.AllocPage() }

// AllocPages reserves count contiguous zero-filled pages within a single
// region and returns the physical address of the first one or 0 when no
// region holds a large enough run.
func AllocPages(count int) uintptr { return frameAllocator.AllocPages(count) }

// FreePage releases the page that contains addr. Double frees are no-ops.
func FreePage(addr uintptr) { frameAllocator.FreePage(addr) }

// FreePages releases count pages starting at the page that contains addr.
func FreePages(addr uintptr, count int) { frameAllocator.FreePages(addr, count) }

// ReserveRange marks every page overlapping [base, base+size) as reserved.
func ReserveRange(base, size uintptr) { frameAllocator.ReserveRange(base, size) }

// ReservePage marks the page that contains addr as reserved.
func ReservePage(addr uintptr) { frameAllocator.ReservePage(addr) }

// IsAvailable returns true if the page that contains addr is tracked and
// currently free.
func IsAvailable(addr uintptr) bool { return frameAllocator.IsAvailable(addr) }

// GetStats returns the allocator counters.
func GetStats() Stats { return frameAllocator.Stats() }
