package mm

// PageAllocFn is a function that can allocate a zero-filled physical page,
// returning its physical address or 0 on exhaustion.
type PageAllocFn func() uintptr

// pageAllocator points to the page allocator function registered using
// SetPageAllocator.
var pageAllocator PageAllocFn

// SetPageAllocator registers a page allocator function that will be used by
// the vmm code when new page-table pages need to be allocated. The pmm
// package registers the bitmap allocator here once it is operational.
func SetPageAllocator(allocFn PageAllocFn) { pageAllocator = allocFn }

// AllocPage allocates a new zero-filled physical page using the currently
// registered page allocator. It returns 0 when no allocator is registered or
// when physical memory is exhausted.
func AllocPage() uintptr {
	if pageAllocator == nil {
		return 0
	}
	return pageAllocator()
}
