// Package memlayout describes the physical memory map of the qemu "virt"
// machine and the fixed virtual addresses the kernel places on top of it.
//
//	00001000 -- boot ROM, provided by qemu
//	02000000 -- CLINT
//	0C000000 -- PLIC
//	10000000 -- uart0
//	10001000 -- virtio disk
//	80000000 -- kernel text, then kernel data
//	end      -- start of the frame allocator's pool
//	PHYSTOP  -- end of RAM used by the kernel
package memlayout

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"sv39os/kernel/mm"
)

// Layout holds the physical addresses of devices and kernel sections.
type Layout struct {
	// UART0 is the base of the UART registers (one page).
	UART0 uintptr

	// Virtio0 is the base of the virtio mmio disk interface (one page).
	Virtio0 uintptr

	// CLINT is the core local interruptor, which contains the timer.
	CLINT     uintptr
	CLINTSize uintptr

	// PLIC is the platform-level interrupt controller.
	PLIC     uintptr
	PLICSize uintptr

	// KernBase is where the kernel image is loaded and RAM begins.
	KernBase uintptr

	// PhysTop is the end of the RAM used by the kernel.
	PhysTop uintptr

	// EText is the end of the kernel text.
	EText uintptr

	// End is the first address after the kernel image; frames from
	// PageRoundUp(End) to PhysTop are handed to the frame allocator.
	End uintptr

	// TrampolinePA is the physical address of the trampoline page inside
	// the kernel text.
	TrampolinePA uintptr

	// NProc is the maximum number of processes; each gets a kernel stack.
	NProc int
}

// Default returns the layout of a qemu virt machine with 128MB of RAM.
func Default() *Layout {
	const kernBase = uintptr(0x80000000)
	return &Layout{
		UART0:        0x10000000,
		Virtio0:      0x10001000,
		CLINT:        0x02000000,
		CLINTSize:    0x10000,
		PLIC:         0x0c000000,
		PLICSize:     0x400000,
		KernBase:     kernBase,
		PhysTop:      kernBase + 128*1024*1024,
		EText:        kernBase + 0x8000,
		End:          kernBase + 0x21000,
		TrampolinePA: kernBase + 0x7000,
		NProc:        64,
	}
}

// Trampoline returns the virtual address of the trampoline page, which is
// mapped at the highest page of both user and kernel address spaces.
func (l *Layout) Trampoline() uintptr {
	return mm.MaxVA - mm.PageSize
}

// KStack returns the virtual address of the kernel stack for process slot p.
// Kernel stacks are placed beneath the trampoline, each followed by an
// invalid guard page.
func (l *Layout) KStack(p int) uintptr {
	return l.Trampoline() - uintptr(p+1)*2*mm.PageSize
}

// RAMSize returns the number of bytes between KernBase and PhysTop.
func (l *Layout) RAMSize() uintptr {
	return l.PhysTop - l.KernBase
}

// Validate checks that the layout is internally consistent.
func (l *Layout) Validate() error {
	aligned := []struct {
		name string
		addr uintptr
	}{
		{"uart0", l.UART0},
		{"virtio0", l.Virtio0},
		{"clint", l.CLINT},
		{"plic", l.PLIC},
		{"kern_base", l.KernBase},
		{"phys_top", l.PhysTop},
		{"etext", l.EText},
		{"trampoline_pa", l.TrampolinePA},
	}
	for _, a := range aligned {
		if mm.PageOffset(a.addr) != 0 {
			return fmt.Errorf("memlayout: %s (0x%x) is not page aligned", a.name, a.addr)
		}
	}

	switch {
	case l.CLINTSize == 0 || l.PLICSize == 0:
		return fmt.Errorf("memlayout: device regions must not be empty")
	case l.KernBase >= l.EText || l.EText > l.End || l.End >= l.PhysTop:
		return fmt.Errorf("memlayout: expected kern_base < etext <= end < phys_top")
	case l.PhysTop > l.Trampoline():
		return fmt.Errorf("memlayout: phys_top (0x%x) overlaps the trampoline", l.PhysTop)
	case l.TrampolinePA < l.KernBase || l.TrampolinePA >= l.EText:
		return fmt.Errorf("memlayout: trampoline_pa (0x%x) is outside the kernel text", l.TrampolinePA)
	case l.NProc <= 0:
		return fmt.Errorf("memlayout: nproc must be positive")
	}

	for _, dev := range []struct {
		name       string
		addr, size uintptr
	}{
		{"uart0", l.UART0, mm.PageSize},
		{"virtio0", l.Virtio0, mm.PageSize},
		{"clint", l.CLINT, l.CLINTSize},
		{"plic", l.PLIC, l.PLICSize},
	} {
		if dev.addr+dev.size > l.KernBase {
			return fmt.Errorf("memlayout: %s overlaps RAM", dev.name)
		}
	}

	return nil
}

// file mirrors Layout with the TOML keys accepted by Load. Missing keys keep
// their default value.
type file struct {
	UART0        *uint64 `toml:"uart0"`
	Virtio0      *uint64 `toml:"virtio0"`
	CLINT        *uint64 `toml:"clint"`
	CLINTSize    *uint64 `toml:"clint_size"`
	PLIC         *uint64 `toml:"plic"`
	PLICSize     *uint64 `toml:"plic_size"`
	KernBase     *uint64 `toml:"kern_base"`
	PhysTop      *uint64 `toml:"phys_top"`
	RAMSize      *uint64 `toml:"ram_size"`
	EText        *uint64 `toml:"etext"`
	End          *uint64 `toml:"end"`
	TrampolinePA *uint64 `toml:"trampoline_pa"`
	NProc        *int    `toml:"nproc"`
}

// Load reads a TOML layout description from path, applies it on top of the
// default layout and validates the result. ram_size is an alternative to
// phys_top and is relative to kern_base.
func Load(path string) (*Layout, error) {
	var f file
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("memlayout: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("memlayout: unknown key %q", undecoded[0].String())
	}

	l := Default()
	set := func(dst *uintptr, v *uint64) {
		if v != nil {
			*dst = uintptr(*v)
		}
	}
	set(&l.UART0, f.UART0)
	set(&l.Virtio0, f.Virtio0)
	set(&l.CLINT, f.CLINT)
	set(&l.CLINTSize, f.CLINTSize)
	set(&l.PLIC, f.PLIC)
	set(&l.PLICSize, f.PLICSize)
	set(&l.KernBase, f.KernBase)
	set(&l.PhysTop, f.PhysTop)
	set(&l.EText, f.EText)
	set(&l.End, f.End)
	set(&l.TrampolinePA, f.TrampolinePA)
	if f.RAMSize != nil {
		l.PhysTop = l.KernBase + uintptr(*f.RAMSize)
	}
	if f.NProc != nil {
		l.NProc = *f.NProc
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}
