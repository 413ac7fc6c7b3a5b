package mm

// MaxMemRegions defines the maximum number of physical memory regions that
// the memory subsystems can track. The region descriptors produced by the
// device-tree scan are capped to this count.
const MaxMemRegions = 8

// MemRegion describes one contiguous range of usable physical memory as
// reported at boot. Region extents are immutable after initialization.
type MemRegion struct {
	// Base is the physical address where the region starts. It is not
	// required to be page-aligned; consumers round it up as needed.
	Base uint64

	// Size is the region length in bytes.
	Size uint64
}

// StartFrame returns the first whole frame contained in the region. Region
// bases reported by firmware may not be page-aligned so the base is rounded
// up.
func (r *MemRegion) StartFrame() Frame {
	return Frame((uintptr(r.Base) + (PageSize - 1)) >> PageShift)
}

// EndFrame returns the last whole frame contained in the region.
func (r *MemRegion) EndFrame() Frame {
	return Frame((uintptr(r.Base+r.Size) >> PageShift) - 1)
}
