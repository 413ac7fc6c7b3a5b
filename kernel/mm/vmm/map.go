package vmm

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

// entryAt returns a pointer to the index-th entry of the table located at the
// given physical address. Table memory is always accessed through the active
// physical window so the walker works both before and after the direct map
// becomes ready.
func entryAt(tableAddr uintptr, index int) *Entry {
	return (*Entry)(mm.PhysToPtr(tableAddr + uintptr(index)<<mm.PointerShift))
}

// walkCreate descends from the context's root table to the entry that maps
// virtAddr at targetLevel, allocating and zeroing a new table page via the
// physical page manager whenever an intermediate entry is invalid. It returns
// nil when an intermediate table cannot be allocated or when the descent runs
// into an existing block mapping.
func (ctx *Context) walkCreate(virtAddr uintptr, targetLevel int) *Entry {
	tableAddr := ctx.rootTable

	for level := 0; level < targetLevel; level++ {
		pte := entryAt(tableAddr, ctx.ops.LevelIndex(level, virtAddr))

		if !ctx.ops.IsValid(*pte) {
			// mm.AllocPage hands out zero-filled pages so the new
			// table starts out with every entry invalid.
			newTable := mm.AllocPage()
			if newTable == 0 {
				return nil
			}

			*pte = ctx.ops.TableEntry(newTable)
		} else if !ctx.ops.IsTable(level, *pte) {
			// A block mapping sits where a table is needed.
			return nil
		}

		tableAddr = ctx.ops.EntryPhys(*pte)
	}

	return entryAt(tableAddr, ctx.ops.LevelIndex(targetLevel, virtAddr))
}

// walk descends from the root table following virtAddr and returns the entry
// where the descent terminated together with its level: either a leaf (page
// or block) entry or nil when an invalid entry is reached.
func (ctx *Context) walk(virtAddr uintptr) (*Entry, int) {
	tableAddr := ctx.rootTable
	lastLevel := ctx.ops.Levels() - 1

	for level := 0; ; level++ {
		pte := entryAt(tableAddr, ctx.ops.LevelIndex(level, virtAddr))

		if !ctx.ops.IsValid(*pte) {
			return nil, level
		}

		if level == lastLevel || !ctx.ops.IsTable(level, *pte) {
			return pte, level
		}

		tableAddr = ctx.ops.EntryPhys(*pte)
	}
}

// MapPage establishes a page-granularity mapping from virtAddr to physAddr
// with the supplied attributes. Mapping over an entry that is already valid
// is a programming error: the call logs a warning and returns false without
// touching the entry. It also returns false when ctx is nil, when either
// address is not page-aligned or when an intermediate table page cannot be
// allocated.
func MapPage(ctx *Context, virtAddr, physAddr uintptr, flags MapFlag) bool {
	if ctx == nil {
		kfmt.Printf("[vmm] MapPage: nil context\n")
		return false
	}

	if virtAddr&(mm.PageSize-1) != 0 || physAddr&(mm.PageSize-1) != 0 {
		kfmt.Printf("[vmm] MapPage: unaligned mapping request 0x%x -> 0x%x\n", virtAddr, physAddr)
		return false
	}

	return mapLeaf(ctx, virtAddr, physAddr, ctx.ops.Levels()-1, flags)
}

// mapLeaf installs a leaf entry for virtAddr at the supplied level.
func mapLeaf(ctx *Context, virtAddr, physAddr uintptr, level int, flags MapFlag) bool {
	pte := ctx.walkCreate(virtAddr, level)
	if pte == nil {
		kfmt.Printf("[vmm] cannot reach level %d entry for 0x%x\n", level, virtAddr)
		return false
	}

	if ctx.ops.IsValid(*pte) {
		kfmt.Printf("[vmm] mapping 0x%x would overwrite a valid entry\n", virtAddr)
		return false
	}

	*pte = ctx.ops.LeafEntry(level, physAddr, flags)
	flushTLBPageFn(virtAddr)
	return true
}

// MapRange establishes mappings for the physical range [physAddr,
// physAddr+size) starting at virtAddr. At each step the mapper greedily
// prefers the largest block size for which the remaining addresses are
// aligned, falling back to single pages, to minimize table depth and TLB
// pressure. size is rounded up to the page size.
//
// On failure MapRange stops and returns false; mappings established before
// the failing step remain in place.
func MapRange(ctx *Context, virtAddr, physAddr, size uintptr, flags MapFlag) bool {
	if ctx == nil {
		kfmt.Printf("[vmm] MapRange: nil context\n")
		return false
	}

	if virtAddr&(mm.PageSize-1) != 0 || physAddr&(mm.PageSize-1) != 0 {
		kfmt.Printf("[vmm] MapRange: unaligned mapping request 0x%x -> 0x%x\n", virtAddr, physAddr)
		return false
	}

	size = (size + mm.PageSize - 1) & ^(mm.PageSize - 1)
	lastLevel := ctx.ops.Levels() - 1

	for size > 0 {
		level := lastLevel
		step := mm.PageSize

		// Check every supported block size from largest (coarsest
		// level) to smallest before falling back to a page mapping.
		for blockLevel := 1; blockLevel < lastLevel; blockLevel++ {
			blockSize := ctx.ops.BlockSize(blockLevel)
			if blockSize == 0 || size < blockSize {
				continue
			}

			if virtAddr&(blockSize-1) == 0 && physAddr&(blockSize-1) == 0 {
				level = blockLevel
				step = blockSize
				break
			}
		}

		if !mapLeaf(ctx, virtAddr, physAddr, level, flags) {
			return false
		}

		virtAddr += step
		physAddr += step
		size -= step
	}

	return true
}

// UnmapPage removes the page-granularity mapping installed for virtAddr. It
// returns false when the address is not mapped or when it is covered by a
// block mapping (use UnmapRange to tear down block mappings).
func UnmapPage(ctx *Context, virtAddr uintptr) bool {
	if ctx == nil {
		kfmt.Printf("[vmm] UnmapPage: nil context\n")
		return false
	}

	pte, level := ctx.walk(virtAddr)
	if pte == nil {
		kfmt.Printf("[vmm] UnmapPage: 0x%x is not mapped\n", virtAddr)
		return false
	}

	if level != ctx.ops.Levels()-1 {
		kfmt.Printf("[vmm] UnmapPage: 0x%x is covered by a block mapping\n", virtAddr)
		return false
	}

	*pte = 0
	flushTLBPageFn(virtAddr)
	return true
}

// UnmapRange tears down every page and block mapping inside [virtAddr,
// virtAddr+size). Holes in the range are skipped. Intermediate table pages
// are not released back to the physical page manager; they are reused by
// future mappings of the same range.
func UnmapRange(ctx *Context, virtAddr, size uintptr) bool {
	if ctx == nil {
		kfmt.Printf("[vmm] UnmapRange: nil context\n")
		return false
	}

	virtAddr &= ^(mm.PageSize - 1)
	size = (size + mm.PageSize - 1) & ^(mm.PageSize - 1)

	for end := virtAddr + size; virtAddr < end; {
		pte, level := ctx.walk(virtAddr)

		step := mm.PageSize
		if pte != nil {
			if blockSize := ctx.ops.BlockSize(level); level != ctx.ops.Levels()-1 && blockSize != 0 {
				step = blockSize
			}

			*pte = 0
			flushTLBPageFn(virtAddr)
		}

		virtAddr += step
	}

	return true
}
