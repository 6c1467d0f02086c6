package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
)

// walk returns the level-0 page table entry for virtAddr in the tree rooted
// at root. If alloc is true, missing intermediate tables are allocated,
// cleared and linked into their parent. The returned entry may itself be
// invalid; callers populate it.
//
// A nil entry with a nil error means the address is not mapped and alloc was
// false. mm.ErrOutOfMemory is returned when a table frame could not be
// allocated.
func walk(root mm.Frame, virtAddr uintptr, alloc bool) (*pageTableEntry, *kernel.Error) {
	if virtAddr >= mm.MaxVA {
		panicFn(errWalkOutOfRange)
		return nil, nil
	}

	table := tableAt(root)
	for level := uint8(pageLevels - 1); level > 0; level-- {
		pte := &table[pageTableIndex(level, virtAddr)]

		switch {
		case pte.IsLeaf():
			panicFn(errNoHugePageSupport)
			return nil, nil
		case pte.HasFlags(FlagValid):
			table = tableAt(pte.Frame())
			continue
		case !alloc:
			return nil, nil
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		frame, err := allocFrameFn()
		if err != nil {
			return nil, err
		}
		kernel.Memset(mm.FrameBytes(frame), 0)

		*pte = newPageTableEntry(frame, FlagValid)
		table = tableAt(frame)
	}

	return &table[pageTableIndex(0, virtAddr)], nil
}

// tableCursor tracks the traversal position inside one table.
type tableCursor struct {
	frame mm.Frame
	level uint8
	index int
	base  uintptr
}

// treeVisitor is invoked for every valid entry found by visitTree. The level
// is the level of the table holding the entry and virtAddr is the first
// virtual address covered by it. Returning true for an entry that points to
// a next-level table makes visitTree descend into it.
type treeVisitor func(level uint8, index int, virtAddr uintptr, pte *pageTableEntry) bool

// visitTree performs a depth-first traversal over the valid entries of the
// table stored in frame and its descendants, in ascending virtual address
// order. level is the level of that table and base the first virtual
// address it covers. The traversal uses an explicit stack bounded by the
// number of page levels. If leaveFn is not nil it is called with each table
// frame after all of its entries have been visited; the starting table is
// reported last.
func visitTree(frame mm.Frame, level uint8, base uintptr, visitFn treeVisitor, leaveFn func(level uint8, frame mm.Frame)) {
	var (
		stack [pageLevels]tableCursor
		depth = 0
	)

	stack[0] = tableCursor{frame: frame, level: level, base: base}
	for depth >= 0 {
		cur := &stack[depth]
		if cur.index == entriesPerTable {
			if leaveFn != nil {
				leaveFn(cur.level, cur.frame)
			}
			depth--
			continue
		}

		index := cur.index
		cur.index++

		pte := &tableAt(cur.frame)[index]
		if !pte.HasFlags(FlagValid) {
			continue
		}

		virtAddr := cur.base + uintptr(index)<<levelShift(cur.level)
		if !visitFn(cur.level, index, virtAddr, pte) || cur.level == 0 || !pte.IsTable() {
			continue
		}

		depth++
		stack[depth] = tableCursor{frame: pte.Frame(), level: cur.level - 1, base: virtAddr}
	}
}
