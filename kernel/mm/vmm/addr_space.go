package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/mm"
)

// maxUserSize is the largest size a user image may reach. The two topmost
// pages are reserved for the trampoline and the trap frame.
const maxUserSize = mm.MaxVA - 2*mm.PageSize

// AddressSpace is the memory of a single process: its user page table, the
// size of the user image and the per-process kernel page table used while
// the process runs in supervisor mode. Callers serialize access to an
// AddressSpace.
type AddressSpace struct {
	ks   *KernelSpace
	user PageTable
	kpt  PageTable
	size uintptr
}

// NewAddressSpace creates an empty address space whose kernel page table
// is derived from ks.
func NewAddressSpace(ks *KernelSpace) (*AddressSpace, *kernel.Error) {
	user, err := NewPageTable()
	if err != nil {
		return nil, err
	}

	kpt, err := ks.NewProcKernelSpace()
	if err != nil {
		user.Free(0)
		return nil, err
	}

	return &AddressSpace{ks: ks, user: user, kpt: kpt}, nil
}

// Size returns the size of the user image in bytes.
func (as *AddressSpace) Size() uintptr { return as.size }

// PageTable returns the user page table.
func (as *AddressSpace) PageTable() PageTable { return as.user }

// KernelPageTable returns the per-process kernel page table.
func (as *AddressSpace) KernelPageTable() PageTable { return as.kpt }

// LoadInitCode places code at address 0 of an empty address space and sets
// its size to one page.
func (as *AddressSpace) LoadInitCode(code []byte) *kernel.Error {
	if err := as.user.LoadInitCode(code); err != nil {
		return err
	}

	as.size = mm.PageSize
	return nil
}

// Sbrk grows the user image by n bytes, or shrinks it if n is negative, and
// returns the previous size. On error the size is left unchanged.
func (as *AddressSpace) Sbrk(n int) (uintptr, *kernel.Error) {
	oldSize := as.size

	switch {
	case n > 0:
		if uintptr(n) > maxUserSize-oldSize {
			return oldSize, ErrAddressSpaceFull
		}

		newSize, err := as.user.Grow(oldSize, oldSize+uintptr(n))
		if err != nil {
			return oldSize, err
		}
		as.size = newSize
	case n < 0:
		if uintptr(-n) > oldSize {
			return oldSize, ErrBadAddress
		}
		as.size = as.user.Shrink(oldSize, oldSize-uintptr(-n))
	}

	return oldSize, nil
}

// Fork creates a new address space holding a private copy of the user image.
func (as *AddressSpace) Fork() (*AddressSpace, *kernel.Error) {
	child, err := NewAddressSpace(as.ks)
	if err != nil {
		return nil, err
	}

	if err = as.user.CopyTo(child.user, as.size); err != nil {
		child.Release()
		return nil, err
	}

	child.size = as.size
	return child, nil
}

// Release frees the user image, the user page table and the per-process
// kernel page table. The address space must not be used afterwards.
func (as *AddressSpace) Release() {
	as.user.Free(as.size)
	FreeProcKernelSpace(as.kpt)

	as.size = 0
	as.user = PageTable{root: mm.InvalidFrame}
	as.kpt = PageTable{root: mm.InvalidFrame}
}

// CopyOut copies src to the user virtual address dst.
func (as *AddressSpace) CopyOut(dst uintptr, src []byte) *kernel.Error {
	return as.user.CopyOut(dst, src)
}

// CopyIn fills dst with bytes read from the user virtual address src.
func (as *AddressSpace) CopyIn(dst []byte, src uintptr) *kernel.Error {
	return as.user.CopyIn(dst, src)
}

// CopyInStr copies a NUL-terminated string from the user virtual address
// src into dst, reading at most limit bytes.
func (as *AddressSpace) CopyInStr(dst []byte, src, limit uintptr) (int, *kernel.Error) {
	return as.user.CopyInStr(dst, src, limit)
}
