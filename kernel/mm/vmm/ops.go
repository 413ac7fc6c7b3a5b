package vmm

// Entry is a raw page-table descriptor. The bit layout is defined by the
// architecture's TableOps implementation; the walker never interprets an
// Entry directly.
type Entry uint64

// MapFlag describes a portable mapping attribute that can be applied to a
// page or block mapping. Read access is always implied. The per-architecture
// TableOps translate MapFlags into hardware descriptor bits.
type MapFlag uintptr

const (
	// FlagWrite allows stores through the mapping.
	FlagWrite MapFlag = 1 << iota

	// FlagExec allows instruction fetches through the mapping.
	FlagExec

	// FlagDevice selects device (non-cacheable, non-gathering) memory
	// attributes. Mappings without it use normal write-back cacheable
	// attributes.
	FlagDevice

	// FlagUser allows EL0/U-mode accesses through the mapping.
	FlagUser

	// FlagGlobal marks the mapping as global so it survives address-space
	// switches.
	FlagGlobal
)

// TableOps abstracts the architecture-specific details of the hardware
// page-table format: level count, index extraction and entry encoding. The
// generic walker always numbers levels top-down with level 0 as the coarsest
// (root) table; implementations for architectures that number their levels
// bottom-up hide the reversal behind this interface.
type TableOps interface {
	// Levels returns the number of translation levels.
	Levels() int

	// LevelIndex extracts the table index for the given level from a
	// virtual address.
	LevelIndex(level int, virtAddr uintptr) int

	// BlockSize returns the mapping granularity available at the given
	// level, or 0 when the level cannot hold a block mapping.
	BlockSize(level int) uintptr

	// IsValid returns true when the entry encodes a live mapping or a
	// pointer to a next-level table.
	IsValid(entry Entry) bool

	// IsTable returns true when the (valid) entry at the given level
	// points to a next-level table rather than encoding a leaf mapping.
	IsTable(level int, entry Entry) bool

	// TableEntry encodes a pointer to the next-level table located at the
	// given physical address.
	TableEntry(tableAddr uintptr) Entry

	// LeafEntry encodes a page or block mapping of the given physical
	// address at the given level with the supplied attributes.
	LeafEntry(level int, physAddr uintptr, flags MapFlag) Entry

	// EntryPhys extracts the physical address encoded in the entry.
	EntryPhys(entry Entry) uintptr
}
