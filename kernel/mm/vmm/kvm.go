package vmm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm"
)

// KernelSpace is the global kernel address space. It direct-maps the kernel
// image and RAM, maps the devices the kernel drives and places the
// trampoline at the top of the address space.
type KernelSpace struct {
	pt     PageTable
	layout *memlayout.Layout
}

// NewKernelSpace allocates the kernel page table and installs the fixed
// kernel mappings described by layout. It returns mm.ErrOutOfMemory if the
// root table cannot be allocated; failing to install any of the mappings
// afterwards is fatal.
func NewKernelSpace(layout *memlayout.Layout) (*KernelSpace, *kernel.Error) {
	pt, err := NewPageTable()
	if err != nil {
		return nil, err
	}

	ks := &KernelSpace{pt: pt, layout: layout}

	ks.Map(layout.UART0, layout.UART0, mm.PageSize, FlagRead|FlagWrite)
	ks.Map(layout.Virtio0, layout.Virtio0, mm.PageSize, FlagRead|FlagWrite)
	ks.Map(layout.CLINT, layout.CLINT, layout.CLINTSize, FlagRead|FlagWrite)
	ks.Map(layout.PLIC, layout.PLIC, layout.PLICSize, FlagRead|FlagWrite)

	// kernel text is executable and read-only; kernel data and the
	// physical RAM we'll make use of are read-write.
	ks.Map(layout.KernBase, layout.KernBase, layout.EText-layout.KernBase, FlagRead|FlagExecute)
	ks.Map(layout.EText, layout.EText, layout.PhysTop-layout.EText, FlagRead|FlagWrite)

	ks.Map(layout.Trampoline(), layout.TrampolinePA, mm.PageSize, FlagRead|FlagExecute)

	return ks, nil
}

// PageTable returns the kernel page table.
func (ks *KernelSpace) PageTable() PageTable {
	return ks.pt
}

// Map adds a mapping to the kernel page table. It is only used while
// booting and does not flush the TLB; a failure is fatal.
func (ks *KernelSpace) Map(va, pa, size uintptr, flags PageTableEntryFlag) {
	kfmt.Log.WithFields(logrus.Fields{
		"va":   fmt.Sprintf("0x%x", va),
		"pa":   fmt.Sprintf("0x%x", pa),
		"size": fmt.Sprintf("0x%x", size),
		"perm": fmt.Sprintf("0x%x", uint64(flags)),
	}).Debug("kvmmap")

	if err := ks.pt.MapPages(va, size, pa, flags); err != nil {
		panicFn(errKernelMap)
	}
}

// Translate converts a kernel virtual address to a physical address. It
// only needs to be used for addresses on the kernel stacks; anything else is
// identity mapped. An unmapped address is fatal.
func (ks *KernelSpace) Translate(va uintptr) uintptr {
	pte := ks.pt.lookup(va)
	if pte == nil {
		panicFn(errKernelTranslate)
		return 0
	}

	return pte.Address() + mm.PageOffset(va)
}

// MapKernelStack allocates a frame for the kernel stack of process slot and
// maps it at layout.KStack(slot). The page below each stack stays unmapped
// and acts as a guard.
func (ks *KernelSpace) MapKernelStack(slot int) (mm.Frame, *kernel.Error) {
	frame, err := allocFrameFn()
	if err != nil {
		return mm.InvalidFrame, err
	}

	ks.Map(ks.layout.KStack(slot), frame.Address(), mm.PageSize, FlagRead|FlagWrite)
	return frame, nil
}

// Activate switches the hart's page table register to the kernel page table
// and enables paging.
func (ks *KernelSpace) Activate(hart *cpu.Hart) {
	activate(hart, ks.pt)
}

// activate installs pt in the hart's satp register and flushes stale
// entries from its TLB.
func activate(hart *cpu.Hart, pt PageTable) {
	hart.WriteSATP(cpu.MakeSATP(pt.root.Address()))
	hart.SfenceVMA()
}

// sharedWithProcess returns true if the kernel leaf mapping at va should be
// visible in a per-process kernel page table. The kernel image, RAM and
// the trampoline are left out.
func (ks *KernelSpace) sharedWithProcess(va uintptr) bool {
	switch {
	case va >= ks.layout.KernBase && va < ks.layout.PhysTop:
		return false
	case va == ks.layout.Trampoline():
		return false
	}
	return true
}

// NewProcKernelSpace builds a kernel page table for a single process. Every
// mapping of the global kernel page table outside the first root slot is
// copied, except for the kernel image, RAM and trampoline; the process table
// gets its own intermediate tables while the leaf frames are shared. The
// devices are then mapped in.
//
// If a frame cannot be allocated, everything built so far is released and
// mm.ErrOutOfMemory is returned.
func (ks *KernelSpace) NewProcKernelSpace() (PageTable, *kernel.Error) {
	pt, err := NewPageTable()
	if err != nil {
		return pt, err
	}

	src := tableAt(ks.pt.root)
	for index := 1; index < entriesPerTable && err == nil; index++ {
		if !src[index].HasFlags(FlagValid) {
			continue
		}
		err = ks.cloneRootSlot(pt, index)
	}

	devices := []struct{ base, size uintptr }{
		{ks.layout.UART0, mm.PageSize},
		{ks.layout.Virtio0, mm.PageSize},
		{ks.layout.CLINT, ks.layout.CLINTSize},
		{ks.layout.PLIC, ks.layout.PLICSize},
	}
	for _, dev := range devices {
		if err != nil {
			break
		}
		err = pt.MapPages(dev.base, dev.size, dev.base, FlagRead|FlagWrite)
	}

	if err != nil {
		FreeProcKernelSpace(pt)
		return PageTable{root: mm.InvalidFrame}, err
	}

	return pt, nil
}

// cloneRootSlot copies the leaf mappings found under the given root slot of
// the kernel page table into dst. The intermediate tables of dst are
// allocated by walk and are checked to be private to dst.
func (ks *KernelSpace) cloneRootSlot(dst PageTable, index int) *kernel.Error {
	var (
		err      *kernel.Error
		srcEntry = tableAt(ks.pt.root)[index]
		base     = uintptr(index) << levelShift(pageLevels-1)
	)

	if !srcEntry.IsTable() {
		panicFn(errNoHugePageSupport)
		return nil
	}

	srcTables := map[mm.Frame]struct{}{srcEntry.Frame(): {}}
	visitTree(srcEntry.Frame(), pageLevels-2, base, func(level uint8, _ int, va uintptr, pte *pageTableEntry) bool {
		switch {
		case err != nil:
			return false
		case pte.IsTable():
			srcTables[pte.Frame()] = struct{}{}
			return true
		case level > 0:
			panicFn(errNoHugePageSupport)
			return false
		case !ks.sharedWithProcess(va):
			return false
		}

		var slot *pageTableEntry
		if slot, err = walk(dst.root, va, true); err != nil {
			return false
		}
		if slot.HasFlags(FlagValid) {
			panicFn(errRemap)
			return false
		}
		*slot = *pte
		return false
	}, nil)
	if err != nil {
		return err
	}

	assertPrivateTables(srcTables, tableAt(dst.root)[index], base)
	return nil
}

// assertPrivateTables verifies that none of the tables reachable through
// entry, which covers the root slot starting at base, is one of srcTables.
// Sharing a table between two page tables is fatal.
func assertPrivateTables(srcTables map[mm.Frame]struct{}, entry pageTableEntry, base uintptr) {
	if !entry.IsTable() {
		return
	}
	if _, shared := srcTables[entry.Frame()]; shared {
		panicFn(errSharedTable)
		return
	}

	visitTree(entry.Frame(), pageLevels-2, base, func(_ uint8, _ int, _ uintptr, pte *pageTableEntry) bool {
		if !pte.IsTable() {
			return false
		}
		if _, shared := srcTables[pte.Frame()]; shared {
			panicFn(errSharedTable)
			return false
		}
		return true
	}, nil)
}

// FreeProcKernelSpace releases the table frames of a per-process kernel page
// table. The leaf frames are shared with the global kernel page table and
// are left untouched.
func FreeProcKernelSpace(pt PageTable) {
	visitTree(pt.root, pageLevels-1, 0, func(_ uint8, _ int, _ uintptr, pte *pageTableEntry) bool {
		return pte.IsTable()
	}, func(_ uint8, frame mm.Frame) {
		freeFrameFn(frame)
	})
}
