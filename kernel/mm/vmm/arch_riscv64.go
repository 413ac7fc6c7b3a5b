//go:build riscv64

package vmm

// kernelTableOps is the translation scheme used for the kernel context on
// this architecture.
var kernelTableOps TableOps = riscvTableOps{}
