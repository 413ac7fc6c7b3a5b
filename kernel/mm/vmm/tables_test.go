package vmm

import "testing"

func TestTableOpsCommonProperties(t *testing.T) {
	specs := []struct {
		descr string
		ops   TableOps
	}{
		{"arm64", arm64TableOps{}},
		{"riscv", riscvTableOps{}},
	}

	for _, spec := range specs {
		if exp, got := 4, spec.ops.Levels(); got != exp {
			t.Errorf("[%s] expected %d levels; got %d", spec.descr, exp, got)
		}

		// Block mappings are available at 1GiB and 2MiB granularity
		// only.
		expBlockSizes := []uintptr{0, 1 << 30, 1 << 21, 0}
		for level, expSize := range expBlockSizes {
			if got := spec.ops.BlockSize(level); got != expSize {
				t.Errorf("[%s] expected level %d block size 0x%x; got 0x%x", spec.descr, level, expSize, got)
			}
		}

		// A virtual address selects one 9-bit index per level.
		virtAddr := uintptr(0xffff800040201000)
		expIndexes := []int{
			int((virtAddr >> 39) & 0x1ff),
			int((virtAddr >> 30) & 0x1ff),
			int((virtAddr >> 21) & 0x1ff),
			int((virtAddr >> 12) & 0x1ff),
		}
		for level, expIndex := range expIndexes {
			if got := spec.ops.LevelIndex(level, virtAddr); got != expIndex {
				t.Errorf("[%s] expected level %d index %d; got %d", spec.descr, level, expIndex, got)
			}
		}

		// The zero entry is invalid.
		if spec.ops.IsValid(0) {
			t.Errorf("[%s] expected zero entry to be invalid", spec.descr)
		}

		// Table entries round trip the next-level table address and are
		// recognized as tables at every non-leaf level.
		tableAddr := uintptr(0x12345000)
		tableEntry := spec.ops.TableEntry(tableAddr)
		if !spec.ops.IsValid(tableEntry) {
			t.Errorf("[%s] expected table entry to be valid", spec.descr)
		}
		for level := 0; level < 3; level++ {
			if !spec.ops.IsTable(level, tableEntry) {
				t.Errorf("[%s] expected entry to be a table at level %d", spec.descr, level)
			}
		}
		if got := spec.ops.EntryPhys(tableEntry); got != tableAddr {
			t.Errorf("[%s] expected table entry phys 0x%x; got 0x%x", spec.descr, tableAddr, got)
		}

		// Leaf entries round trip the mapped physical address and are
		// never mistaken for tables.
		physAddr := uintptr(0x40200000)
		for _, level := range []int{1, 2, 3} {
			leaf := spec.ops.LeafEntry(level, physAddr, FlagWrite)
			if !spec.ops.IsValid(leaf) {
				t.Errorf("[%s] expected level %d leaf entry to be valid", spec.descr, level)
			}
			if spec.ops.IsTable(level, leaf) {
				t.Errorf("[%s] expected level %d leaf entry to not be a table", spec.descr, level)
			}
			if got := spec.ops.EntryPhys(leaf); got != physAddr {
				t.Errorf("[%s] expected level %d leaf phys 0x%x; got 0x%x", spec.descr, level, physAddr, got)
			}
		}
	}
}

func TestArm64LeafEntryAttributes(t *testing.T) {
	var ops arm64TableOps

	// Page descriptors at the last level carry the page bit.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&arm64DescTable == 0 {
		t.Error("expected page descriptor to have the page bit set")
	}
	if entry := ops.LeafEntry(2, 0x200000, 0); entry&arm64DescTable != 0 {
		t.Error("expected block descriptor to have the page bit clear")
	}

	// Read-only unless FlagWrite is given.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&arm64APReadOnly == 0 {
		t.Error("expected read-only mapping without FlagWrite")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagWrite); entry&arm64APReadOnly != 0 {
		t.Error("expected writable mapping with FlagWrite")
	}

	// Non-executable unless FlagExec is given.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&arm64PXN == 0 || entry&arm64UXN == 0 {
		t.Error("expected PXN and UXN without FlagExec")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagExec); entry&arm64PXN != 0 {
		t.Error("expected PXN clear with FlagExec")
	}

	// Device mappings select the device MAIR index and skip the
	// shareability field.
	if entry := ops.LeafEntry(3, 0x1000, FlagDevice); entry&arm64AttrDevice == 0 || entry&arm64SHInner != 0 {
		t.Error("expected device attributes with FlagDevice")
	}

	// Kernel mappings are global; user mappings are tagged per address
	// space unless explicitly marked global.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&arm64NotGlobal != 0 {
		t.Error("expected kernel mapping to be global")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagUser); entry&arm64NotGlobal == 0 {
		t.Error("expected user mapping to be non-global")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagUser|FlagGlobal); entry&arm64NotGlobal != 0 {
		t.Error("expected user+global mapping to be global")
	}

	// Access flag is always pre-set so mappings never fault on first
	// access.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&arm64AccessFlag == 0 {
		t.Error("expected the access flag to be pre-set")
	}
}

func TestRiscvLeafEntryAttributes(t *testing.T) {
	var ops riscvTableOps

	// Leaves are always readable with A and D pre-set.
	entry := ops.LeafEntry(3, 0x1000, 0)
	for _, bit := range []Entry{riscvPTEValid, riscvPTERead, riscvPTEAccess, riscvPTEDirty} {
		if entry&bit == 0 {
			t.Errorf("expected leaf entry to carry bit 0x%x", uint64(bit))
		}
	}

	if entry&riscvPTEWrite != 0 {
		t.Error("expected W clear without FlagWrite")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagWrite); entry&riscvPTEWrite == 0 {
		t.Error("expected W set with FlagWrite")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagExec); entry&riscvPTEExec == 0 {
		t.Error("expected X set with FlagExec")
	}

	// Kernel mappings are global; user mappings carry U instead.
	if entry := ops.LeafEntry(3, 0x1000, 0); entry&riscvPTEGlob == 0 {
		t.Error("expected kernel mapping to be global")
	}
	if entry := ops.LeafEntry(3, 0x1000, FlagUser); entry&riscvPTEUser == 0 || entry&riscvPTEGlob != 0 {
		t.Error("expected user mapping to carry U and not G")
	}

	// Table pointers are valid entries with R, W and X all clear.
	tableEntry := ops.TableEntry(0x2000)
	if tableEntry&riscvPTELeafMask != 0 {
		t.Error("expected table entry to have R, W and X clear")
	}
}
