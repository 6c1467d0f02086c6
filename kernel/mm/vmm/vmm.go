// Package vmm builds and maintains the Sv39 page tables of the kernel and of
// user processes, and moves data across the user/kernel boundary.
package vmm

import (
	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm"
)

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	panicFn      = kfmt.Panic
	allocFrameFn = mm.AllocFrame
	freeFrameFn  = mm.FreeFrame
	unmapFn      = PageTable.Unmap

	// ErrBadAddress is returned by the copy routines when a user address
	// has no user-accessible translation.
	ErrBadAddress = &kernel.Error{Module: "vmm", Message: "bad user address"}

	// ErrStringTooLong is returned by CopyInStr when no NUL terminator is
	// found within the requested number of bytes.
	ErrStringTooLong = &kernel.Error{Module: "vmm", Message: "string exceeds maximum length"}

	// ErrAddressSpaceFull is returned when a user address space cannot grow
	// any further.
	ErrAddressSpaceFull = &kernel.Error{Module: "vmm", Message: "address space limit reached"}

	errWalkOutOfRange     = &kernel.Error{Module: "vmm", Message: "walk"}
	errNoHugePageSupport  = &kernel.Error{Module: "vmm", Message: "walk: superpages not supported"}
	errRemap              = &kernel.Error{Module: "vmm", Message: "remap"}
	errMapZeroSize        = &kernel.Error{Module: "vmm", Message: "mappages: size"}
	errUnmapNotAligned    = &kernel.Error{Module: "vmm", Message: "uvmunmap: not aligned"}
	errUnmapWalk          = &kernel.Error{Module: "vmm", Message: "uvmunmap: walk"}
	errUnmapNotMapped     = &kernel.Error{Module: "vmm", Message: "uvmunmap: not mapped"}
	errUnmapNotLeaf       = &kernel.Error{Module: "vmm", Message: "uvmunmap: not a leaf"}
	errKernelMap          = &kernel.Error{Module: "vmm", Message: "kvmmap"}
	errKernelTranslate    = &kernel.Error{Module: "vmm", Message: "kvmpa"}
	errSharedTable        = &kernel.Error{Module: "vmm", Message: "kvmcreate: shared page table"}
	errInitCodeTooLarge   = &kernel.Error{Module: "vmm", Message: "inituvm: more than a page"}
	errCopyMissingPTE     = &kernel.Error{Module: "vmm", Message: "uvmcopy: pte should exist"}
	errCopyPageNotPresent = &kernel.Error{Module: "vmm", Message: "uvmcopy: page not present"}
	errClearMissingPTE    = &kernel.Error{Module: "vmm", Message: "uvmclear"}
	errFreeWalkLeaf       = &kernel.Error{Module: "vmm", Message: "freewalk: leaf"}
)

// Init builds the kernel address space for the supplied machine layout,
// allocates and maps a kernel stack for every process slot and switches the
// hart to the new page table. The frame allocator must already be
// registered with the mm package.
func Init(layout *memlayout.Layout, hart *cpu.Hart) (*KernelSpace, *kernel.Error) {
	ks, err := NewKernelSpace(layout)
	if err != nil {
		return nil, err
	}

	for slot := 0; slot < layout.NProc; slot++ {
		if _, err = ks.MapKernelStack(slot); err != nil {
			return nil, err
		}
	}

	ks.Activate(hart)
	return ks, nil
}
