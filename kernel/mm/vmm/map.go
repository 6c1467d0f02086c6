package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
)

// PageTable is the root of a three-level Sv39 translation tree. The zero
// value is not usable; obtain one from NewPageTable.
type PageTable struct {
	root mm.Frame
}

// NewPageTable allocates an empty page table. It returns mm.ErrOutOfMemory if
// the root frame cannot be allocated.
func NewPageTable() (PageTable, *kernel.Error) {
	frame, err := allocFrameFn()
	if err != nil {
		return PageTable{root: mm.InvalidFrame}, err
	}

	kernel.Memset(mm.FrameBytes(frame), 0)
	return PageTable{root: frame}, nil
}

// Frame returns the physical frame that holds the root table.
func (pt PageTable) Frame() mm.Frame {
	return pt.root
}

// Valid returns true if the page table has a root frame.
func (pt PageTable) Valid() bool {
	return pt.root.Valid()
}

// MapPages installs translations for the virtual range [va, va+size) to the
// physical range starting at pa, using the given permission flags. va and
// size need not be page-aligned. Attempting to map over an existing
// translation is fatal.
//
// On allocation failure mm.ErrOutOfMemory is returned and the translations
// installed so far are left in place.
func (pt PageTable) MapPages(va, size, pa uintptr, flags PageTableEntryFlag) *kernel.Error {
	if size == 0 {
		panicFn(errMapZeroSize)
		return nil
	}

	var (
		page = mm.PageRoundDown(va)
		last = mm.PageRoundDown(va + size - 1)
	)

	for {
		pte, err := walk(pt.root, page, true)
		if err != nil {
			return err
		}

		if pte.HasFlags(FlagValid) {
			panicFn(errRemap)
			return nil
		}

		*pte = newPageTableEntry(mm.FrameFromAddress(pa), flags|FlagValid)

		if page == last {
			return nil
		}
		page += mm.PageSize
		pa += mm.PageSize
	}
}

// Unmap removes pageCount translations starting at the page-aligned address
// va. Each translation must exist and be a leaf. If freeFrames is true, the
// physical frames behind the removed translations are released.
func (pt PageTable) Unmap(va, pageCount uintptr, freeFrames bool) {
	if mm.PageOffset(va) != 0 {
		panicFn(errUnmapNotAligned)
		return
	}

	for page := va; page < va+pageCount*mm.PageSize; page += mm.PageSize {
		pte, _ := walk(pt.root, page, false)
		switch {
		case pte == nil:
			panicFn(errUnmapWalk)
			return
		case !pte.HasFlags(FlagValid):
			panicFn(errUnmapNotMapped)
			return
		case !pte.IsLeaf():
			panicFn(errUnmapNotLeaf)
			return
		}

		if freeFrames {
			freeFrameFn(pte.Frame())
		}
		*pte = 0
	}
}

// WalkAddr returns the physical address of the user page containing va. The
// second return value is false if va is out of range, unmapped or not
// accessible from user mode.
func (pt PageTable) WalkAddr(va uintptr) (uintptr, bool) {
	if va >= mm.MaxVA {
		return 0, false
	}

	pte, _ := walk(pt.root, va, false)
	if pte == nil || !pte.IsLeaf() || !pte.HasFlags(FlagUser) {
		return 0, false
	}

	return pte.Address(), true
}

// lookup returns the leaf entry for va or nil if va is not mapped.
func (pt PageTable) lookup(va uintptr) *pageTableEntry {
	if va >= mm.MaxVA {
		return nil
	}

	pte, _ := walk(pt.root, va, false)
	if pte == nil || !pte.HasFlags(FlagValid) {
		return nil
	}
	return pte
}
