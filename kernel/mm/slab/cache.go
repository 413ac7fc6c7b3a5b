package slab

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm/pmm"
)

// CacheFlag describes a creation-time cache attribute.
type CacheFlag uint32

const (
	// CacheNoReap keeps every empty slab; the cache never returns extents
	// to the physical page manager.
	CacheNoReap CacheFlag = 1 << iota

	// CacheNoLookup excludes the cache's slabs from the slab lookup
	// table. The lookup table's own entry cache must carry this flag so
	// the table does not try to track its own backing memory.
	CacheNoLookup
)

// AllocFlag describes a per-allocation attribute.
type AllocFlag uint32

// KMZero causes the returned object to be zero-filled. Without it the object
// retains whatever its previous occupant left behind.
const KMZero AllocFlag = 1 << 0

// CacheStats describes a cache's allocation counters.
type CacheStats struct {
	// TotalObjs is the object capacity across every live slab.
	TotalObjs uint32

	// ActiveObjs is the number of currently allocated objects.
	ActiveObjs uint32

	// TotalSlabs is the number of live slabs.
	TotalSlabs uint32

	// AllocCount and FreeCount accumulate over the cache lifetime.
	AllocCount uint64
	FreeCount  uint64
}

// Cache is a named pool of same-size, same-alignment objects backed by zero
// or more slabs. A cache's slabs are partitioned into exactly one of three
// lists according to occupancy.
type Cache struct {
	name    string
	objSize uintptr
	align   uintptr
	flags   CacheFlag

	// slabPages is the extent size in pages; objsPerSlab the object
	// capacity of one extent.
	slabPages   int
	objsPerSlab uint32

	full    slabList
	partial slabList
	empty   slabList

	stats CacheStats

	// next links the cache into the package-wide registry.
	next *Cache
}

// cacheRegistry heads the list of every live cache, newest first.
var cacheRegistry *Cache

// allocPagesFn and freePagesFn are used by tests to intercept slab extent
// allocation; they are automatically inlined by the compiler.
var (
	allocPagesFn = pmm.AllocPages
	freePagesFn  = pmm.FreePages
)

// CacheCreate creates a named cache serving objects of the given size and
// alignment. Alignment is rounded up to at least pointer width and the
// object size to a multiple of the alignment. The slab extent starts at one
// page and doubles until at least minObjsPerSlab objects fit. CacheCreate
// returns nil for a zero or over-maximum object size, for a non power-of-two
// alignment or when no extent can satisfy the sizing rule; no cache is
// created in those cases.
func CacheCreate(name string, objSize, align uintptr, flags CacheFlag) *Cache {
	if objSize == 0 || objSize > maxObjectSize {
		kfmt.Printf("[slab] cannot create cache %s: invalid object size %d\n", name, uint64(objSize))
		return nil
	}

	if align == 0 {
		align = 1 << mm.PointerShift
	}
	if align&(align-1) != 0 {
		kfmt.Printf("[slab] cannot create cache %s: alignment %d is not a power of two\n", name, uint64(align))
		return nil
	}
	if align < 1<<mm.PointerShift {
		align = 1 << mm.PointerShift
	}

	objSize = alignUp(objSize, align)

	cache := &Cache{
		name:    name,
		objSize: objSize,
		align:   align,
		flags:   flags,
	}

	for pages := 1; pages <= maxSlabPages; pages <<= 1 {
		capacity := slabCapacity(uintptr(pages)<<mm.PageShift, objSize, align)
		if capacity >= minObjsPerSlab {
			cache.slabPages = pages
			cache.objsPerSlab = capacity
			break
		}
	}

	if cache.slabPages == 0 {
		kfmt.Printf("[slab] cannot create cache %s: no extent fits %d objects of size %d\n",
			name, minObjsPerSlab, uint64(objSize))
		return nil
	}

	cache.next = cacheRegistry
	cacheRegistry = cache

	return cache
}

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// ObjSize returns the rounded object size served by the cache.
func (c *Cache) ObjSize() uintptr { return c.objSize }

// ObjsPerSlab returns the object capacity of one slab extent.
func (c *Cache) ObjsPerSlab() uint32 { return c.objsPerSlab }

// Stats returns a copy of the cache counters.
func (c *Cache) Stats() CacheStats { return c.stats }

// grow creates a new slab for the cache and pushes it onto the partial list.
// It returns nil when the physical page manager cannot back the extent.
func (c *Cache) grow() *slabHeader {
	physBase := allocPagesFn(c.slabPages)
	if physBase == 0 {
		return nil
	}

	s := mapSlabHeader(c, physBase, c.slabPages)
	c.partial.push(s)
	c.stats.TotalObjs += c.objsPerSlab
	c.stats.TotalSlabs++

	if c.flags&CacheNoLookup == 0 {
		lookupInsert(s)
	}

	return s
}

// Alloc returns a pointer to a free object, preferring a partial slab, then
// an empty one and finally a freshly created slab. It returns 0 when no slab
// has free objects and a new extent cannot be allocated. Objects are
// zero-filled only when the KMZero flag is supplied.
func (c *Cache) Alloc(flags AllocFlag) uintptr {
	s := c.partial.head
	if s == nil {
		if s = c.empty.head; s != nil {
			c.empty.remove(s)
			c.partial.push(s)
		} else if s = c.grow(); s == nil {
			return 0
		}
	}

	index := s.popFree()
	if s.freeCount == 0 {
		c.partial.remove(s)
		c.full.push(s)
	}

	addr := s.objAddr(index)
	if flags&KMZero != 0 {
		kernel.Memset(addr, 0, c.objSize)
	}

	c.stats.ActiveObjs++
	c.stats.AllocCount++

	return addr
}

// findOwner locates the slab containing addr by scanning the full and
// partial lists. The slab lookup table accelerates the cache-agnostic Free
// path so it does not have to pay for this scan.
func (c *Cache) findOwner(addr uintptr) *slabHeader {
	for _, list := range [...]*slabList{&c.full, &c.partial} {
		for s := list.head; s != nil; s = s.next {
			if s.contains(addr) {
				return s
			}
		}
	}

	return nil
}

// Free returns the object at addr to the cache. Addresses that do not belong
// to any of the cache's slabs, or that do not sit on an object boundary, are
// refused with a warning. When a slab loses its last occupied object it is
// released back to the physical page manager unless it is the cache's sole
// empty slab or the cache was created with CacheNoReap.
func (c *Cache) Free(addr uintptr) {
	s := c.findOwner(addr)
	if s == nil {
		kfmt.Printf("[slab] %s: free of 0x%x which is not owned by this cache\n", c.name, addr)
		return
	}

	index, ok := s.objIndex(addr)
	if !ok {
		kfmt.Printf("[slab] %s: free of 0x%x which is not an object boundary\n", c.name, addr)
		return
	}

	wasFull := s.freeCount == 0
	s.pushFree(index)

	c.stats.ActiveObjs--
	c.stats.FreeCount++

	switch {
	case wasFull:
		c.full.remove(s)
		c.partial.push(s)
	case s.freeCount == s.objCount:
		c.partial.remove(s)
		c.empty.push(s)
		c.reap()
	}
}

// reap releases empty slabs while more than one exists, keeping a single
// spare to avoid alloc/free thrashing re-creating extents. Caches flagged
// CacheNoReap retain every empty slab.
func (c *Cache) reap() {
	if c.flags&CacheNoReap != 0 {
		return
	}

	for c.empty.count > 1 {
		c.destroySlab(c.empty.head)
	}
}

// destroySlab unlinks s from the empty list and hands its extent back to the
// physical page manager.
func (c *Cache) destroySlab(s *slabHeader) {
	c.empty.remove(s)

	if c.flags&CacheNoLookup == 0 {
		lookupRemove(s)
	}

	c.stats.TotalObjs -= c.objsPerSlab
	c.stats.TotalSlabs--
	freePagesFn(s.physBase, c.slabPages)
}

// CacheDestroy releases every slab of the cache and unlinks it from the
// registry. Destroying a cache that still has live objects is refused.
func CacheDestroy(c *Cache) {
	if c == nil {
		return
	}

	if c.stats.ActiveObjs != 0 {
		kfmt.Printf("[slab] cannot destroy cache %s: %d objects still active\n", c.name, c.stats.ActiveObjs)
		return
	}

	for c.empty.head != nil {
		c.destroySlab(c.empty.head)
	}

	// With no active objects the full and partial lists must be empty.
	for prev, cur := (*Cache)(nil), cacheRegistry; cur != nil; prev, cur = cur, cur.next {
		if cur != c {
			continue
		}

		if prev == nil {
			cacheRegistry = cur.next
		} else {
			prev.next = cur.next
		}
		break
	}
}

// Free returns an object to whichever cache owns it by resolving the
// address through the slab lookup table. Addresses the table does not know
// about are refused with a warning.
func Free(addr uintptr) {
	cache := lookupFind(addr)
	if cache == nil {
		kfmt.Printf("[slab] free of untracked address 0x%x\n", addr)
		return
	}

	cache.Free(addr)
}

// DumpCacheStats logs one line per registered cache.
func DumpCacheStats() {
	for c := cacheRegistry; c != nil; c = c.next {
		kfmt.Printf("[slab] %20s objsize %4d slabs %3d objs %5d/%5d allocs %d frees %d\n",
			c.name, uint64(c.objSize), c.stats.TotalSlabs, c.stats.ActiveObjs,
			c.stats.TotalObjs, c.stats.AllocCount, c.stats.FreeCount)
	}
}
