package vmm

// VMSAv8-64 translation with a 4K granule: four levels of 512 entries, level
// 0 being the coarsest. Descriptor bits (D5.3 in the ARM ARM):
//
//	bit 0     valid
//	bit 1     1 = table (levels 0-2) or page (level 3), 0 = block
//	bits 4:2  MAIR attribute index
//	bits 7:6  access permissions
//	bits 9:8  shareability
//	bit 10    access flag
//	bit 53    PXN
//	bit 54    UXN
//
// Bits 47:12 hold the output address.
const (
	arm64Levels = 4

	arm64DescValid = Entry(1 << 0)
	arm64DescTable = Entry(1 << 1)

	// MAIR indices as programmed by the boot code: 0 = normal write-back,
	// 1 = device-nGnRnE.
	arm64AttrNormal = Entry(0 << 2)
	arm64AttrDevice = Entry(1 << 2)

	arm64APReadOnly = Entry(1 << 7)
	arm64APUser     = Entry(1 << 6)
	arm64SHInner    = Entry(3 << 8)
	arm64AccessFlag = Entry(1 << 10)
	arm64NotGlobal  = Entry(1 << 11)
	arm64PXN        = Entry(1 << 53)
	arm64UXN        = Entry(1 << 54)

	arm64PhysMask = uintptr(0x0000fffffffff000)
)

// arm64TableOps implements TableOps for the VMSAv8-64 4K translation scheme.
type arm64TableOps struct{}

func (arm64TableOps) Levels() int { return arm64Levels }

func (arm64TableOps) LevelIndex(level int, virtAddr uintptr) int {
	return int((virtAddr >> arm64LevelShift(level)) & 0x1ff)
}

// arm64LevelShift returns the virtual address shift for a walker level:
// 39, 30, 21 and 12 for levels 0 through 3.
func arm64LevelShift(level int) uintptr {
	return uintptr(39 - 9*level)
}

// BlockSize reports block mappings at level 1 (1GiB) and level 2 (2MiB).
// Level 0 entries can only point to tables and level 3 entries are always
// page-granular.
func (arm64TableOps) BlockSize(level int) uintptr {
	switch level {
	case 1, 2:
		return uintptr(1) << arm64LevelShift(level)
	default:
		return 0
	}
}

func (arm64TableOps) IsValid(entry Entry) bool {
	return entry&arm64DescValid != 0
}

func (arm64TableOps) IsTable(level int, entry Entry) bool {
	// At the last level bit 1 marks a page descriptor, not a table.
	return level < arm64Levels-1 && entry&arm64DescTable != 0
}

func (arm64TableOps) TableEntry(tableAddr uintptr) Entry {
	return Entry(tableAddr&arm64PhysMask) | arm64DescTable | arm64DescValid
}

func (arm64TableOps) LeafEntry(level int, physAddr uintptr, flags MapFlag) Entry {
	entry := Entry(physAddr&arm64PhysMask) | arm64DescValid | arm64AccessFlag

	if level == arm64Levels-1 {
		// page descriptors reuse the table bit
		entry |= arm64DescTable
	}

	if flags&FlagDevice != 0 {
		entry |= arm64AttrDevice
	} else {
		entry |= arm64AttrNormal | arm64SHInner
	}

	if flags&FlagWrite == 0 {
		entry |= arm64APReadOnly
	}

	if flags&FlagUser != 0 {
		entry |= arm64APUser
	} else {
		entry |= arm64UXN
	}

	if flags&FlagExec == 0 {
		entry |= arm64PXN | arm64UXN
	}

	// Kernel mappings are global unless explicitly marked otherwise;
	// user mappings are tagged per-ASID.
	if flags&FlagUser != 0 && flags&FlagGlobal == 0 {
		entry |= arm64NotGlobal
	}

	return entry
}

func (arm64TableOps) EntryPhys(entry Entry) uintptr {
	return uintptr(entry) & arm64PhysMask
}
