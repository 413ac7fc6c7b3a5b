// Package kmain drives the ordered bring-up of the memory-management core.
// The boot layer (entry code, exception vectors, device-tree scan) runs
// first and hands over a BootInfo; everything after that point is the strict
// initialization order the memory subsystems depend on.
package kmain

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/kfmt"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm/pmm"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm/slab"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm/vmm"
)

// BootInfo carries the boot-layer facts the memory core needs: the usable
// memory regions discovered by the device-tree scan and the physical extents
// that must never be handed out.
type BootInfo struct {
	// MemRegions lists the usable physical memory ranges, at most
	// mm.MaxMemRegions of them, in registration order.
	MemRegions []mm.MemRegion

	// KernelEnd is the first physical address past the loaded kernel
	// image (linker-provided).
	KernelEnd uintptr

	// BootTablesBase/BootTablesSize describe the boot page tables and the
	// early boot allocations that must stay reserved.
	BootTablesBase uintptr
	BootTablesSize uintptr

	// DTBBase/DTBSize describe the device-tree blob.
	DTBBase uintptr
	DTBSize uintptr
}

// InitMemory brings up the memory core in dependency order: physical page
// manager, kernel page tables, direct map, slab allocator with its bootstrap
// lookup table and finally the lookup table's migration to self-hosted
// allocation. Errors here are unrecoverable: nothing past this point can run
// without a working allocator, so failures halt.
func InitMemory(info *BootInfo) {
	if err := pmm.Init(info.KernelEnd, info.MemRegions); err != nil {
		kernel.Halt(err)
		return
	}

	// Carve out everything the boot layer still relies on before any
	// caller-visible allocation happens.
	pmm.ReserveRange(info.BootTablesBase, info.BootTablesSize)
	pmm.ReserveRange(info.DTBBase, info.DTBSize)

	if err := vmm.Init(); err != nil {
		kernel.Halt(err)
		return
	}

	if err := vmm.CreateDirectMap(info.MemRegions); err != nil {
		kernel.Halt(err)
		return
	}

	slab.Init()
	slab.MigrateLookupToDynamic()

	stats := pmm.GetStats()
	kfmt.Printf("[kmain] memory core ready: %d/%d pages free, %d reserved\n",
		stats.FreePages, stats.TotalPages, stats.ReservedPages)
}
