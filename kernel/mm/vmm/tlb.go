package vmm

// The TLB maintenance entry points are installed by the platform bring-up
// code since the barrier sequences live in assembly owned by the boot layer.
// Until handlers are registered (and always under test) flushes are no-ops:
// during single-threaded boot the only live translation regime is the boot
// identity map which the mapper never modifies.
var (
	flushTLBPageFn = func(virtAddr uintptr) {}
	flushTLBAllFn  = func() {}
)

// SetTLBFlushHandlers registers the architecture's TLB invalidation
// primitives. page is invoked with the virtual address of every modified
// mapping; all invalidates the entire TLB.
func SetTLBFlushHandlers(page func(uintptr), all func()) {
	flushTLBPageFn = page
	flushTLBAllFn = all
}

// FlushTLBPage invalidates any cached translation for the page that contains
// virtAddr.
func FlushTLBPage(virtAddr uintptr) {
	flushTLBPageFn(virtAddr)
}

// FlushTLBAll invalidates every cached translation.
func FlushTLBAll() {
	flushTLBAllFn()
}
