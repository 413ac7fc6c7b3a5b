// Package vmm implements the virtual memory mapper: it builds and walks the
// hardware page-table tree for the kernel address space, establishes page and
// block granularity mappings and constructs the direct map that gives the
// kernel a linear view of all physical memory.
//
// The table walker is parameterized by a per-architecture TableOps
// implementation so the same walk logic serves both the ARM64 top-down and
// the RISC-V bottom-up table layouts.
package vmm

import (
	"github.com/nirotheowl/ProtoKernel-sub001/kernel"
	"github.com/nirotheowl/ProtoKernel-sub001/kernel/mm"
)

var (
	// kernelCtx is the single kernel page-table context. It is created
	// once by Init and lives for the lifetime of the kernel.
	kernelCtx *Context

	errCtxAllocFailed = &kernel.Error{Module: "vmm", Message: "cannot allocate root page-table page"}
)

// Context describes one page-table tree. Exactly one kernel context exists;
// it owns the root table and, transitively, every table page linked below it.
type Context struct {
	// rootTable is the physical address of the top-level table.
	rootTable uintptr

	// ops supplies the architecture-specific table format.
	ops TableOps

	// kernelSpace is true for the kernel context.
	kernelSpace bool
}

// NewContext allocates a zeroed root table via the physical page manager and
// returns a context that translates through it using the supplied table
// format. It returns nil when the root table page cannot be allocated.
func NewContext(ops TableOps, kernelSpace bool) *Context {
	rootTable := mm.AllocPage()
	if rootTable == 0 {
		return nil
	}

	return &Context{
		rootTable:   rootTable,
		ops:         ops,
		kernelSpace: kernelSpace,
	}
}

// RootTable returns the physical address of the context's top-level table.
// The boot code loads it into the translation base register when the context
// is activated.
func (ctx *Context) RootTable() uintptr {
	return ctx.rootTable
}

// Init creates the kernel page-table context. The physical page manager must
// be operational before Init is called since every table page is allocated
// through it.
func Init() *kernel.Error {
	if kernelCtx != nil {
		return nil
	}

	if kernelCtx = NewContext(kernelTableOps, true); kernelCtx == nil {
		return errCtxAllocFailed
	}

	return nil
}

// KernelContext returns the kernel page-table context or nil if Init has not
// run yet.
func KernelContext() *Context {
	return kernelCtx
}
