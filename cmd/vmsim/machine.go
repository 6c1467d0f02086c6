package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/vmm"
)

// machine is a booted simulated machine: its RAM bank, the boot hart and the
// kernel address space.
type machine struct {
	layout *memlayout.Layout
	ram    *mm.RAM
	hart   *cpu.Hart
	ks     *vmm.KernelSpace
}

// boot maps the machine's RAM, starts the frame allocator and activates the
// kernel page table on hart 0.
func boot(layout *memlayout.Layout) (*machine, error) {
	ram, err := mm.MapRAM(layout.KernBase, layout.RAMSize())
	if err != nil {
		return nil, fmt.Errorf("mapping RAM: %w", err)
	}

	m := &machine{layout: layout, ram: ram, hart: &cpu.Hart{}}
	if kerr := pmm.Init(ram, layout.End); kerr != nil {
		_ = ram.Unmap()
		return nil, kerr
	}

	// A layout whose RAM cannot hold the kernel page table halts the
	// hart from inside kvmmap.
	err = guard(func() error {
		var ierr error
		m.ks, ierr = errorOf(vmm.Init(layout, m.hart))
		return ierr
	})
	if err != nil {
		m.shutdown()
		return nil, err
	}

	kfmt.Log.WithFields(logrus.Fields{
		"satp":       fmt.Sprintf("0x%x", m.hart.SATP()),
		"free_pages": pmm.FreeMemory() / mm.PageSize,
	}).Info("kernel address space active")
	return m, nil
}

// shutdown releases the RAM bank. All page tables become invalid.
func (m *machine) shutdown() {
	mm.SetFrameAllocator(nil)
	mm.SetRAM(nil)
	if err := m.ram.Unmap(); err != nil {
		kfmt.Log.WithError(err).Warn("error unmapping RAM")
	}
}

// errorOf converts a (value, *kernel.Error) pair into a (value, error) pair
// without wrapping a nil *kernel.Error in a non-nil interface.
func errorOf[T any](v T, kerr *kernel.Error) (T, error) {
	if kerr != nil {
		return v, kerr
	}
	return v, nil
}

// guard runs fn and converts a halted hart into an error. Any other panic is
// propagated.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r != cpu.ErrHalted {
				panic(r)
			}
			err = cpu.ErrHalted
		}
	}()

	return fn()
}
