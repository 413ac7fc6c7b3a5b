// Package slab implements the kernel's general-purpose object allocator: a
// set of named caches, each serving fixed-size objects out of slabs carved
// from physical pages, plus the slab lookup table that maps any object
// address back to the cache that owns it.
//
// The lookup table starts out in bootstrap mode, feeding directly off the
// physical page manager through the direct map, and migrates exactly once to
// self-hosted allocation via MigrateLookupToDynamic.
package slab

// Init brings up the slab layer: it creates the bootstrap-mode lookup table.
// It must run after the physical page manager is operational and the direct
// map is ready, since slab extents are addressed through the physical
// window.
func Init() {
	if activeLookup != nil {
		return
	}

	lookupInit()
}
