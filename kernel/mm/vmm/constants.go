package vmm

const (
	// pageLevels indicates the number of page levels of the Sv39 scheme.
	// Level 2 is the root table and level 0 holds the leaf entries.
	pageLevels = 3

	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level; each table has 512 entries.
	pageLevelBits = 9

	// entriesPerTable is the number of 8-byte entries in a table page.
	entriesPerTable = 1 << pageLevelBits

	// ptePPNShift is the bit position of the physical page number inside
	// a page table entry.
	ptePPNShift = 10

	// pteFlagMask selects the flag bits of a page table entry.
	pteFlagMask = (1 << ptePPNShift) - 1

	// ptePPNMask selects the 44-bit physical page number once shifted
	// down by ptePPNShift.
	ptePPNMask = (1 << 44) - 1
)

const (
	// FlagValid is set when the entry holds a translation.
	FlagValid PageTableEntryFlag = 1 << iota

	// FlagRead is set if the page can be read.
	FlagRead

	// FlagWrite is set if the page can be written to.
	FlagWrite

	// FlagExecute is set if the page contains executable code.
	FlagExecute

	// FlagUser is set if user-mode code can access this page. If not set
	// only supervisor code can access this page.
	FlagUser

	// FlagGlobal marks mappings that exist in all address spaces.
	FlagGlobal

	// FlagAccessed is set by the hardware when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the hardware when this page is modified.
	FlagDirty
)

const (
	// leafFlags is the set of permission bits whose presence turns a
	// valid entry into a leaf. An entry that is valid but has none of them
	// points to the next-level table.
	leafFlags = FlagRead | FlagWrite | FlagExecute

	// userPageFlags is the permission set of user data pages.
	userPageFlags = FlagRead | FlagWrite | FlagExecute | FlagUser
)
