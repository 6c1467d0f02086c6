package vmm

import "sv39os/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

// pageTableEntry describes a page table entry. These entries encode a
// physical frame number and a set of flags using the Sv39 layout.
type pageTableEntry uint64

// newPageTableEntry returns an entry pointing at frame with the given flags.
func newPageTableEntry(frame mm.Frame, flags PageTableEntryFlag) pageTableEntry {
	var pte pageTableEntry
	pte.SetFrame(frame)
	pte.SetFlags(flags)
	return pte
}

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// Flags returns the flag bits of the entry.
func (pte pageTableEntry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(uint64(pte) & pteFlagMask)
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uint64(pte) >> ptePPNShift) & ptePPNMask)
}

// SetFrame updates the page table entry to point the the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uint64(*pte) & pteFlagMask) | (uint64(frame)&ptePPNMask)<<ptePPNShift)
}

// Address returns the physical address of the frame this entry points to.
func (pte pageTableEntry) Address() uintptr {
	return pte.Frame().Address()
}

// IsLeaf returns true if the entry is valid and maps a data frame.
func (pte pageTableEntry) IsLeaf() bool {
	return pte.HasFlags(FlagValid) && pte.HasAnyFlag(leafFlags)
}

// IsTable returns true if the entry is valid and points to a next-level table.
func (pte pageTableEntry) IsTable() bool {
	return pte.HasFlags(FlagValid) && !pte.HasAnyFlag(leafFlags)
}

// pageTable overlays the 512 entries stored in one table frame.
type pageTable [entriesPerTable]pageTableEntry

// tableAt returns the table stored in frame f, accessed through the
// kernel's direct map of physical memory.
func tableAt(f mm.Frame) *pageTable {
	return (*pageTable)(mm.FramePointer(f))
}

// pageTableIndex extracts the 9-bit index for the given level from a
// virtual address.
func pageTableIndex(level uint8, virtAddr uintptr) int {
	return int((virtAddr >> levelShift(level)) & (entriesPerTable - 1))
}

// levelShift returns the position of the lowest virtual address bit indexed
// by the given level.
func levelShift(level uint8) uintptr {
	return mm.PageShift + pageLevelBits*uintptr(level)
}
