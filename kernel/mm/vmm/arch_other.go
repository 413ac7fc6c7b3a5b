//go:build !arm64 && !riscv64

package vmm

// kernelTableOps falls back to the ARM64 table layout on unsupported
// architectures so the memory subsystems can be exercised on development
// hosts.
var kernelTableOps TableOps = arm64TableOps{}
