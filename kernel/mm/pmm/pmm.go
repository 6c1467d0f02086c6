// Package pmm implements the physical frame allocator (kalloc/kfree).
package pmm

import (
	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
)

var (
	// frameAllocator is the allocator registered with the mm package by
	// Init.
	frameAllocator *Allocator

	errPoolOutsideRAM = &kernel.Error{Module: "pmm", Message: "allocator pool is not backed by RAM"}
)

// Init sets up the kernel physical memory allocation sub-system. Every frame
// between the end of the kernel image and the end of the RAM bank becomes
// available to mm.AllocFrame.
func Init(ram *mm.RAM, kernelEnd uintptr) *kernel.Error {
	start := mm.PageRoundUp(kernelEnd)
	if ram == nil || !ram.Contains(start, ram.End()-start) {
		return errPoolOutsideRAM
	}

	mm.SetRAM(ram)
	frameAllocator = NewAllocator(start, ram.End())
	mm.SetFrameAllocator(allocFrame)
	mm.SetFrameReleaser(freeFrame)

	kfmt.Printf("pmm: %d free pages\n", frameAllocator.FreeFrames())
	return nil
}

// FreeMemory returns the number of free bytes of the allocator installed by
// Init.
func FreeMemory() uintptr {
	if frameAllocator == nil {
		return 0
	}
	return frameAllocator.FreeMemory()
}

// TotalMemory returns the number of bytes managed by the allocator
// installed by Init, whether free or in use.
func TotalMemory() uintptr {
	if frameAllocator == nil {
		return 0
	}
	return uintptr(frameAllocator.TotalFrames()) * mm.PageSize
}

func allocFrame() (mm.Frame, *kernel.Error) {
	return frameAllocator.AllocFrame()
}

func freeFrame(f mm.Frame) {
	frameAllocator.FreeFrame(f)
}
