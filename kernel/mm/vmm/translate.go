package vmm

import "github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"

// VirtToPhys returns the physical address that corresponds to virtAddr in
// the supplied context or 0 when the address is not mapped. Both page and
// block mappings are handled; for blocks the offset inside the block is
// preserved.
func VirtToPhys(ctx *Context, virtAddr uintptr) uintptr {
	if ctx == nil {
		return 0
	}

	pte, level := ctx.walk(virtAddr)
	if pte == nil {
		return 0
	}

	granule := mm.PageSize
	if blockSize := ctx.ops.BlockSize(level); level != ctx.ops.Levels()-1 && blockSize != 0 {
		granule = blockSize
	}

	return ctx.ops.EntryPhys(*pte) + (virtAddr & (granule - 1))
}

// IsMapped returns true when virtAddr is covered by a live page or block
// mapping in the supplied context.
func IsMapped(ctx *Context, virtAddr uintptr) bool {
	if ctx == nil {
		return false
	}

	pte, _ := ctx.walk(virtAddr)
	return pte != nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}
