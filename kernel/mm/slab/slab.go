package slab

import (
	"unsafe"

	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

const (
	// minObjsPerSlab is the smallest object count a slab extent is
	// allowed to yield. Extent sizing doubles the page count until this
	// many objects fit so per-slab metadata overhead stays proportionally
	// small.
	minObjsPerSlab = 8

	// maxSlabPages caps the extent doubling. Extents are always a power
	// of two number of pages for clean physical backing.
	maxSlabPages = 8

	// maxObjectSize is the largest object size a cache will accept. It is
	// derived from the largest extent: minObjsPerSlab objects plus the
	// on-slab header and free-list must fit into maxSlabPages pages.
	maxObjectSize = uintptr(4080)

	// freeListEnd is the sentinel index terminating a slab's free list.
	freeListEnd = ^uint32(0)
)

// slabHeader sits at the start of every slab extent. The free list that
// follows it is an intrusive singly-linked list encoded as object indices;
// using indices instead of pointers avoids aliasing the slab's raw object
// memory while keeping push and pop O(1).
//
// Extent layout: [header][free list, one uint32 per object][pad][objects].
type slabHeader struct {
	next, prev *slabHeader

	// cache owns this slab for the slab's whole lifetime.
	cache *Cache

	// physBase is the physical address of the extent; virtBase is the
	// same extent seen through the active physical window.
	physBase uintptr
	virtBase uintptr
	slabSize uintptr

	objCount  uint32
	freeCount uint32

	// freeHead indexes the first free object or holds freeListEnd when
	// the slab is full.
	freeHead uint32
}

var slabHeaderSize = unsafe.Sizeof(slabHeader{})

// alignUp rounds value up to the next multiple of align. align must be a
// power of two.
func alignUp(value, align uintptr) uintptr {
	return (value + align - 1) & ^(align - 1)
}

// slabCapacity returns the number of objects of the given (aligned) size
// that fit into a slab extent of slabSize bytes next to the header, the
// free-list array and the alignment padding before the first object.
func slabCapacity(slabSize, objSize, align uintptr) uint32 {
	count := (slabSize - slabHeaderSize) / (objSize + 4)
	for count > 0 {
		objStart := alignUp(slabHeaderSize+4*count, align)
		if objStart+count*objSize <= slabSize {
			break
		}
		count--
	}

	return uint32(count)
}

// freeList returns the free-list index array stored right after the header.
func (s *slabHeader) freeList() []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(s.virtBase+slabHeaderSize)), s.objCount)
}

// objStart returns the address of the first object in the extent.
func (s *slabHeader) objStart() uintptr {
	return alignUp(s.virtBase+slabHeaderSize+4*uintptr(s.objCount), s.cache.align)
}

// objAddr returns the address of the index-th object.
func (s *slabHeader) objAddr(index uint32) uintptr {
	return s.objStart() + uintptr(index)*s.cache.objSize
}

// objIndex maps an object address back to its index. It returns false for
// addresses outside the object area or not aligned to an object boundary.
func (s *slabHeader) objIndex(addr uintptr) (uint32, bool) {
	start := s.objStart()
	if addr < start {
		return 0, false
	}

	offset := addr - start
	index := offset / s.cache.objSize
	if index >= uintptr(s.objCount) || offset%s.cache.objSize != 0 {
		return 0, false
	}

	return uint32(index), true
}

// contains returns true when addr falls anywhere inside the slab extent.
func (s *slabHeader) contains(addr uintptr) bool {
	return addr >= s.virtBase && addr < s.virtBase+s.slabSize
}

// initFreeList links every object index into the free list.
func (s *slabHeader) initFreeList() {
	list := s.freeList()
	for i := uint32(0); i < s.objCount; i++ {
		if i == s.objCount-1 {
			list[i] = freeListEnd
		} else {
			list[i] = i + 1
		}
	}

	s.freeHead = 0
	s.freeCount = s.objCount
}

// popFree removes and returns the free-list head. The caller must ensure the
// slab has free objects.
func (s *slabHeader) popFree() uint32 {
	index := s.freeHead
	s.freeHead = s.freeList()[index]
	s.freeCount--
	return index
}

// pushFree prepends the given object index to the free list.
func (s *slabHeader) pushFree(index uint32) {
	s.freeList()[index] = s.freeHead
	s.freeHead = index
	s.freeCount++
}

// slabList is an intrusive doubly-linked list holding the slabs of one
// occupancy class (full, partial or empty).
type slabList struct {
	head  *slabHeader
	count int
}

// push prepends s to the list.
func (l *slabList) push(s *slabHeader) {
	s.prev = nil
	s.next = l.head
	if l.head != nil {
		l.head.prev = s
	}
	l.head = s
	l.count++
}

// remove unlinks s from the list.
func (l *slabList) remove(s *slabHeader) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.next, s.prev = nil, nil
	l.count--
}

// mapSlabHeader overlays a slab header on the start of a freshly allocated
// extent and wires up its free list.
func mapSlabHeader(cache *Cache, physBase uintptr, pages int) *slabHeader {
	virtBase := mm.PhysToAddr(physBase)

	s := (*slabHeader)(unsafe.Pointer(virtBase))
	s.cache = cache
	s.physBase = physBase
	s.virtBase = virtBase
	s.slabSize = uintptr(pages) << mm.PageShift
	s.objCount = cache.objsPerSlab
	s.initFreeList()

	return s
}
