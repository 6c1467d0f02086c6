package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
)

// LoadInitCode loads the user code of the first process at address 0 of an
// empty page table. The code must fit in a single page.
func (pt PageTable) LoadInitCode(code []byte) *kernel.Error {
	if uintptr(len(code)) >= mm.PageSize {
		panicFn(errInitCodeTooLarge)
		return nil
	}

	frame, err := allocFrameFn()
	if err != nil {
		return err
	}

	page := mm.FrameBytes(frame)
	kernel.Memset(page, 0)
	if err = pt.MapPages(0, mm.PageSize, frame.Address(), userPageFlags); err != nil {
		freeFrameFn(frame)
		return err
	}
	kernel.Memcopy(code, page)

	return nil
}

// Grow allocates and maps zeroed user pages so the address space grows from
// oldSize to newSize bytes, and returns the new size. If newSize is not
// larger than oldSize, oldSize is returned unchanged.
//
// If a frame cannot be allocated or mapped, the pages added by this call are
// released and mm.ErrOutOfMemory is returned.
func (pt PageTable) Grow(oldSize, newSize uintptr) (uintptr, *kernel.Error) {
	if newSize <= oldSize {
		return oldSize, nil
	}

	for va := mm.PageRoundUp(oldSize); va < newSize; va += mm.PageSize {
		frame, err := allocFrameFn()
		if err != nil {
			pt.Shrink(va, oldSize)
			return 0, err
		}

		kernel.Memset(mm.FrameBytes(frame), 0)
		if err = pt.MapPages(va, mm.PageSize, frame.Address(), userPageFlags); err != nil {
			freeFrameFn(frame)
			pt.Shrink(va, oldSize)
			return 0, err
		}
	}

	return newSize, nil
}

// Shrink unmaps and frees user pages so the address space goes from oldSize
// to newSize bytes, and returns the new size. oldSize can be larger than the
// actual process size. If newSize is not smaller than oldSize, oldSize is
// returned unchanged.
func (pt PageTable) Shrink(oldSize, newSize uintptr) uintptr {
	if newSize >= oldSize {
		return oldSize
	}

	if start, end := mm.PageRoundUp(newSize), mm.PageRoundUp(oldSize); start < end {
		unmapFn(pt, start, (end-start)/mm.PageSize, true)
	}

	return newSize
}

// CopyTo copies both the page table entries and the contents of the first
// size bytes of this address space into dst, which is typically the empty
// page table of a child process. Every page in the range must be mapped.
//
// If a frame cannot be allocated, the pages copied into dst so far are
// released and mm.ErrOutOfMemory is returned.
func (pt PageTable) CopyTo(dst PageTable, size uintptr) *kernel.Error {
	for va := uintptr(0); va < size; va += mm.PageSize {
		pte, _ := walk(pt.root, va, false)
		switch {
		case pte == nil:
			panicFn(errCopyMissingPTE)
			return nil
		case !pte.IsLeaf():
			panicFn(errCopyPageNotPresent)
			return nil
		}

		frame, err := allocFrameFn()
		if err == nil {
			kernel.Memcopy(mm.FrameBytes(pte.Frame()), mm.FrameBytes(frame))
			if err = dst.MapPages(va, mm.PageSize, frame.Address(), pte.Flags()); err != nil {
				freeFrameFn(frame)
			}
		}

		if err != nil {
			if va > 0 {
				unmapFn(dst, 0, va/mm.PageSize, true)
			}
			return err
		}
	}

	return nil
}

// ClearUser removes user access from the page containing va. It is used to
// turn the page below the user stack into a guard page.
func (pt PageTable) ClearUser(va uintptr) {
	pte, _ := walk(pt.root, va, false)
	if pte == nil {
		panicFn(errClearMissingPTE)
		return
	}

	pte.ClearFlags(FlagUser)
}

// Free releases the first size bytes of user memory and then every frame
// used by the page table itself, including the root.
func (pt PageTable) Free(size uintptr) {
	if size > 0 {
		unmapFn(pt, 0, mm.PageRoundUp(size)/mm.PageSize, true)
	}
	freeTables(pt)
}

// freeTables releases the table frames of pt after all of their children.
// All leaf mappings must already have been removed.
func freeTables(pt PageTable) {
	visitTree(pt.root, pageLevels-1, 0, func(_ uint8, _ int, _ uintptr, pte *pageTableEntry) bool {
		if pte.IsLeaf() {
			panicFn(errFreeWalkLeaf)
			return false
		}
		return true
	}, func(_ uint8, frame mm.Frame) {
		freeFrameFn(frame)
	})
}
