package vmm

// Sv48 translation: four levels of 512 entries. The RISC-V privileged spec
// numbers the levels bottom-up (the root table is level 3, the leaf table
// level 0) which is the reverse of the walker's top-down numbering; the
// reversal is confined to this file. PTE bits:
//
//	bit 0  V valid
//	bit 1  R readable
//	bit 2  W writable
//	bit 3  X executable
//	bit 4  U user accessible
//	bit 5  G global
//	bit 6  A accessed
//	bit 7  D dirty
//
// A valid entry with R=W=X=0 is a pointer to a next-level table. The PPN
// occupies bits 53:10 (the physical address shifted right by 2).
const (
	riscvLevels = 4

	riscvPTEValid  = Entry(1 << 0)
	riscvPTERead   = Entry(1 << 1)
	riscvPTEWrite  = Entry(1 << 2)
	riscvPTEExec   = Entry(1 << 3)
	riscvPTEUser   = Entry(1 << 4)
	riscvPTEGlob   = Entry(1 << 5)
	riscvPTEAccess = Entry(1 << 6)
	riscvPTEDirty  = Entry(1 << 7)

	riscvPTELeafMask = riscvPTERead | riscvPTEWrite | riscvPTEExec

	// ppnShift converts between a physical address and the PPN field: the
	// address is shifted right by PageShift then left by 10.
	riscvPPNShift = 2

	riscvPhysMask = uintptr(0x0000fffffffff000)
)

// riscvTableOps implements TableOps for the Sv48 translation scheme.
type riscvTableOps struct{}

func (riscvTableOps) Levels() int { return riscvLevels }

// riscvHWLevel converts the walker's top-down level number into the Sv48 bottom-up
// level number, e.g. walker level 0 (root) is hardware level 3.
func riscvHWLevel(level int) int {
	return riscvLevels - 1 - level
}

func (riscvTableOps) LevelIndex(level int, virtAddr uintptr) int {
	shift := uintptr(12 + 9*riscvHWLevel(level))
	return int((virtAddr >> shift) & 0x1ff)
}

// BlockSize reports superpage mappings at walker level 1 (1GiB gigapages)
// and level 2 (2MiB megapages). Sv48 also permits 512GiB terapages at the
// root level but the mapper never emits them.
func (riscvTableOps) BlockSize(level int) uintptr {
	switch level {
	case 1, 2:
		return uintptr(1) << (12 + 9*riscvHWLevel(level))
	default:
		return 0
	}
}

func (riscvTableOps) IsValid(entry Entry) bool {
	return entry&riscvPTEValid != 0
}

func (riscvTableOps) IsTable(level int, entry Entry) bool {
	return level < riscvLevels-1 && entry&riscvPTELeafMask == 0
}

func (riscvTableOps) TableEntry(tableAddr uintptr) Entry {
	return Entry((tableAddr&riscvPhysMask)>>riscvPPNShift) | riscvPTEValid
}

func (riscvTableOps) LeafEntry(level int, physAddr uintptr, flags MapFlag) Entry {
	// A and D are pre-set so implementations that trap on their updates
	// never fault on kernel mappings.
	entry := Entry((physAddr&riscvPhysMask)>>riscvPPNShift) |
		riscvPTEValid | riscvPTERead | riscvPTEAccess | riscvPTEDirty

	if flags&FlagWrite != 0 {
		entry |= riscvPTEWrite
	}

	if flags&FlagExec != 0 {
		entry |= riscvPTEExec
	}

	if flags&FlagUser != 0 {
		entry |= riscvPTEUser
	} else {
		entry |= riscvPTEGlob
	}

	if flags&FlagGlobal != 0 {
		entry |= riscvPTEGlob
	}

	return entry
}

func (riscvTableOps) EntryPhys(entry Entry) uintptr {
	return (uintptr(entry) << riscvPPNShift) & riscvPhysMask
}
