package slab

import (
	"unsafe"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm/pmm"
)

const (
	// lookupBootstrapBuckets is the bucket count used while the table
	// runs in bootstrap mode. It is sized generously enough that a
	// bootstrap-mode resize must never trigger in practice.
	lookupBootstrapBuckets = 64

	// lookupThresholdPct is the load-factor ceiling (in percent) that
	// triggers a table grow outside of bootstrap.
	lookupThresholdPct = 75

	// lookupThresholdStepPct is added to the ceiling when a grow fails,
	// letting the table degrade to a higher load factor instead of
	// failing the insert that triggered the grow.
	lookupThresholdStepPct = 25

	// lookupMaxBootPages caps the pages the bootstrap entry pool may
	// carve from the physical page manager.
	lookupMaxBootPages = 8
)

var (
	errLookupBootAlloc   = &kernel.Error{Module: "slab_lookup", Message: "cannot allocate bootstrap table pages"}
	errLookupBootResize  = &kernel.Error{Module: "slab_lookup", Message: "bootstrap table overflow: resize is not possible before migration"}
	errLookupEntryCache  = &kernel.Error{Module: "slab_lookup", Message: "cannot create the hash-entry cache"}
	errLookupMigrateCopy = &kernel.Error{Module: "slab_lookup", Message: "cannot copy entries into the dynamic table"}

	// haltFn is mocked by tests exercising the fatal bootstrap paths.
	haltFn = kernel.Halt
)

// lookupMode tags the table's operating phase. The phases are entered in
// order and never reversed.
type lookupMode uint8

const (
	// lookupBootstrap: table memory comes straight from the physical
	// page manager through the direct map.
	lookupBootstrap lookupMode = iota

	// lookupDynamic: entries come from a dedicated slab cache and the
	// bucket array from the page manager, resizable.
	lookupDynamic
)

// lookupEntry represents one physical-page-sized slice of a live slab. A
// slab spanning N pages inserts N entries, all carrying the full slab
// interval.
type lookupEntry struct {
	pageAddr  uintptr
	slabStart uintptr
	slabEnd   uintptr

	cache *Cache
	slab  *slabHeader

	next *lookupEntry
}

var lookupEntrySize = unsafe.Sizeof(lookupEntry{})

// lookupTable maps any address inside a live slab back to the owning cache.
type lookupTable struct {
	buckets     []*lookupEntry
	bucketCount uintptr
	hashMask    uintptr

	entryCount   int
	thresholdPct int

	mode lookupMode

	// freeEntries pools recycled entries. In bootstrap mode it is also
	// where freshly carved page slices end up; in dynamic mode recycled
	// entries are returned to the entry cache instead.
	freeEntries *lookupEntry

	// bootstrap-mode resources, released wholesale at migration
	bootPages     [lookupMaxBootPages]uintptr
	bootPageCount int

	// dynamic-mode resources
	entryCache      *Cache
	bucketPagesPhys uintptr
	bucketPageCount int
}

// activeLookup is the process-wide table instance. Migration builds a full
// replacement table and swaps this pointer.
var activeLookup *lookupTable

// lookupHash spreads the entropy of a page-aligned address across the low
// bits by XOR-folding the high bits in three stages, then masks the result
// to the current bucket count.
func (t *lookupTable) lookupHash(addr uintptr) uintptr {
	h := addr >> mm.PageShift
	h ^= h >> 32
	h ^= h >> 16
	h ^= h >> 8
	return h & t.hashMask
}

// lookupInit creates the bootstrap-mode table. The table and its entry pool
// are carved directly from the physical page manager; failing to allocate
// them halts the system since nothing above the slab layer can operate
// without the table.
func lookupInit() {
	pagePhys := pmm.AllocPage()
	if pagePhys == 0 {
		haltFn(errLookupBootAlloc)
		return
	}

	t := &lookupTable{
		bucketCount:  lookupBootstrapBuckets,
		hashMask:     lookupBootstrapBuckets - 1,
		thresholdPct: lookupThresholdPct,
		mode:         lookupBootstrap,
	}

	// The first bootstrap page holds the bucket array; the remainder of
	// the page is chopped into entries.
	t.bootPages[0] = pagePhys
	t.bootPageCount = 1

	pageVirt := mm.PhysToAddr(pagePhys)
	t.buckets = unsafe.Slice((**lookupEntry)(unsafe.Pointer(pageVirt)), lookupBootstrapBuckets)
	t.chopIntoEntries(pageVirt+lookupBootstrapBuckets<<mm.PointerShift, mm.PageSize-lookupBootstrapBuckets<<mm.PointerShift)

	activeLookup = t
}

// chopIntoEntries slices a raw memory run into free entries.
func (t *lookupTable) chopIntoEntries(base, size uintptr) {
	for ; size >= lookupEntrySize; base, size = base+lookupEntrySize, size-lookupEntrySize {
		entry := (*lookupEntry)(unsafe.Pointer(base))
		entry.next = t.freeEntries
		t.freeEntries = entry
	}
}

// allocEntry returns a zeroed entry using the allocation path of the current
// mode. In bootstrap mode entry pool exhaustion carves another page from the
// physical page manager; running out of pages (or pool slots) there is fatal.
// In dynamic mode a nil return signals exhaustion to the caller.
func (t *lookupTable) allocEntry() *lookupEntry {
	switch t.mode {
	case lookupBootstrap:
		if t.freeEntries == nil {
			if t.bootPageCount == lookupMaxBootPages {
				haltFn(errLookupBootAlloc)
				return nil
			}

			pagePhys := pmm.AllocPage()
			if pagePhys == 0 {
				haltFn(errLookupBootAlloc)
				return nil
			}

			t.bootPages[t.bootPageCount] = pagePhys
			t.bootPageCount++
			t.chopIntoEntries(mm.PhysToAddr(pagePhys), mm.PageSize)
		}

		entry := t.freeEntries
		t.freeEntries = entry.next
		*entry = lookupEntry{}
		return entry

	default:
		addr := t.entryCache.Alloc(KMZero)
		if addr == 0 {
			return nil
		}
		return (*lookupEntry)(unsafe.Pointer(addr))
	}
}

// freeEntry recycles an entry through the current mode's pool.
func (t *lookupTable) freeEntry(entry *lookupEntry) {
	if t.mode == lookupBootstrap {
		entry.next = t.freeEntries
		t.freeEntries = entry
		return
	}

	t.entryCache.Free(uintptr(unsafe.Pointer(entry)))
}

// insert adds one chain entry per page the slab spans. If the insertion
// would push the load factor past the current threshold the table grows
// first; in bootstrap mode a grow demand is fatal.
func (t *lookupTable) insert(s *slabHeader) {
	pages := int(s.slabSize >> mm.PageShift)

	if (t.entryCount+pages)*100 > t.thresholdPct*int(t.bucketCount) {
		if t.mode == lookupBootstrap {
			haltFn(errLookupBootResize)
			return
		}
		t.resize(t.bucketCount << 1)
	}

	for page := 0; page < pages; page++ {
		entry := t.allocEntry()
		if entry == nil {
			kfmt.Printf("[slab_lookup] dropping entry for slab 0x%x: entry pool exhausted\n", s.virtBase)
			return
		}

		entry.pageAddr = s.virtBase + uintptr(page)<<mm.PageShift
		entry.slabStart = s.virtBase
		entry.slabEnd = s.virtBase + s.slabSize
		entry.cache = s.cache
		entry.slab = s

		bucket := t.lookupHash(entry.pageAddr)
		entry.next = t.buckets[bucket]
		t.buckets[bucket] = entry
		t.entryCount++
	}
}

// remove drops every entry belonging to the slab.
func (t *lookupTable) remove(s *slabHeader) {
	pages := int(s.slabSize >> mm.PageShift)

	for page := 0; page < pages; page++ {
		pageAddr := s.virtBase + uintptr(page)<<mm.PageShift
		bucket := t.lookupHash(pageAddr)

		for prev, cur := &t.buckets[bucket], t.buckets[bucket]; cur != nil; cur = cur.next {
			if cur.slab != s || cur.pageAddr != pageAddr {
				prev = &cur.next
				continue
			}

			*prev = cur.next
			t.entryCount--
			t.freeEntry(cur)
			break
		}
	}
}

// find returns the entry whose slab interval contains addr or nil. The upper
// interval bound is exclusive: an address one byte past a slab's end does
// not match.
func (t *lookupTable) find(addr uintptr) *lookupEntry {
	for cur := t.buckets[t.lookupHash(addr)]; cur != nil; cur = cur.next {
		if addr >= cur.slabStart && addr < cur.slabEnd {
			return cur
		}
	}

	return nil
}

// resize grows the bucket array to newBucketCount (a power of two) and
// rehashes every entry. When the new bucket array cannot be allocated the
// table instead raises its load-factor threshold and keeps operating so the
// triggering insert still succeeds.
func (t *lookupTable) resize(newBucketCount uintptr) {
	pageCount := int((newBucketCount<<mm.PointerShift + mm.PageSize - 1) >> mm.PageShift)
	pagesPhys := pmm.AllocPages(pageCount)
	if pagesPhys == 0 {
		t.thresholdPct += lookupThresholdStepPct
		kfmt.Printf("[slab_lookup] resize to %d buckets failed; raising load threshold to %d%%\n",
			uint64(newBucketCount), t.thresholdPct)
		return
	}

	newBuckets := unsafe.Slice((**lookupEntry)(mm.PhysToPtr(pagesPhys)), newBucketCount)

	oldBuckets := t.buckets
	t.buckets = newBuckets
	t.bucketCount = newBucketCount
	t.hashMask = newBucketCount - 1

	for _, head := range oldBuckets {
		for cur := head; cur != nil; {
			next := cur.next
			bucket := t.lookupHash(cur.pageAddr)
			cur.next = t.buckets[bucket]
			t.buckets[bucket] = cur
			cur = next
		}
	}

	if t.bucketPageCount != 0 {
		pmm.FreePages(t.bucketPagesPhys, t.bucketPageCount)
	}

	t.bucketPagesPhys = pagesPhys
	t.bucketPageCount = pageCount
}

// migrate builds a dynamic-mode replacement table, copies every live entry
// into it, swaps the active table pointer and releases all bootstrap pages.
// The transition runs exactly once; failures before the swap are fatal since
// the system cannot continue with a table stuck between modes.
func (t *lookupTable) migrate() {
	if t.mode != lookupBootstrap {
		kfmt.Printf("[slab_lookup] migrate: table is already dynamic\n")
		return
	}

	// The entry cache must not be tracked by the lookup table (the table
	// would try to track its own backing memory) and must never give its
	// slabs back while entries are live.
	entryCache := CacheCreate("slab_lookup_entry", lookupEntrySize, 1<<mm.PointerShift,
		CacheNoReap|CacheNoLookup)
	if entryCache == nil {
		haltFn(errLookupEntryCache)
		return
	}

	pageCount := int((t.bucketCount<<mm.PointerShift + mm.PageSize - 1) >> mm.PageShift)
	pagesPhys := pmm.AllocPages(pageCount)
	if pagesPhys == 0 {
		haltFn(errLookupMigrateCopy)
		return
	}

	newTable := &lookupTable{
		buckets:         unsafe.Slice((**lookupEntry)(mm.PhysToPtr(pagesPhys)), t.bucketCount),
		bucketCount:     t.bucketCount,
		hashMask:        t.hashMask,
		thresholdPct:    t.thresholdPct,
		mode:            lookupDynamic,
		entryCache:      entryCache,
		bucketPagesPhys: pagesPhys,
		bucketPageCount: pageCount,
	}

	for _, head := range t.buckets {
		for cur := head; cur != nil; cur = cur.next {
			entry := newTable.allocEntry()
			if entry == nil {
				haltFn(errLookupMigrateCopy)
				return
			}

			*entry = *cur
			bucket := newTable.lookupHash(entry.pageAddr)
			entry.next = newTable.buckets[bucket]
			newTable.buckets[bucket] = entry
			newTable.entryCount++
		}
	}

	activeLookup = newTable

	for i := 0; i < t.bootPageCount; i++ {
		pmm.FreePage(t.bootPages[i])
	}

	kfmt.Printf("[slab_lookup] migrated %d entries to dynamic mode (%d buckets)\n",
		newTable.entryCount, uint64(newTable.bucketCount))
}

// lookupInsert registers a freshly created slab with the active table.
func lookupInsert(s *slabHeader) {
	if activeLookup == nil {
		kfmt.Printf("[slab_lookup] insert before init; slab 0x%x untracked\n", s.virtBase)
		return
	}

	activeLookup.insert(s)
}

// lookupRemove drops a dying slab from the active table.
func lookupRemove(s *slabHeader) {
	if activeLookup == nil {
		return
	}

	activeLookup.remove(s)
}

// lookupFind resolves the cache owning the slab that contains addr or nil.
func lookupFind(addr uintptr) *Cache {
	if activeLookup == nil {
		return nil
	}

	if entry := activeLookup.find(addr); entry != nil {
		return entry.cache
	}

	return nil
}

// MigrateLookupToDynamic switches the slab lookup table from bootstrap-mode
// to self-hosted allocation. It must run once the slab allocator is
// operational.
func MigrateLookupToDynamic() {
	if activeLookup == nil {
		kfmt.Printf("[slab_lookup] migrate before init\n")
		return
	}

	activeLookup.migrate()
}

// LookupCacheFor returns the cache owning the slab that contains addr, or
// nil when the address is not inside any tracked slab.
func LookupCacheFor(addr uintptr) *Cache {
	return lookupFind(addr)
}

// LookupLoadFactor returns the active table's load factor in percent.
func LookupLoadFactor() int {
	if activeLookup == nil {
		return 0
	}

	return activeLookup.entryCount * 100 / int(activeLookup.bucketCount)
}
