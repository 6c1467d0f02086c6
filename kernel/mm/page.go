// Package mm defines the physical frame and virtual page abstractions shared
// by the physical and virtual memory managers, together with the direct map
// that exposes physical RAM to kernel code.
package mm

import (
	"math"

	"sv39os/kernel"
)

const (
	// PageShift is equal to log2(PageSize).
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// MaxVA is one beyond the highest virtual address accepted by the
	// kernel. It is one bit less than the 39 bits allowed by Sv39 so that
	// addresses with the high bit set never need to be sign-extended.
	MaxVA = uintptr(1) << (9 + 9 + 9 + PageShift - 1)
)

var (
	// ErrOutOfMemory is returned when the frame allocator cannot satisfy a
	// request. It is the only recoverable error of the memory subsystem.
	ErrOutOfMemory = &kernel.Error{Module: "mm", Message: "out of memory"}
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Unaligned addresses are rounded down.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(PageRoundDown(physAddr) >> PageShift)
}

// PageRoundUp rounds size up to the next page boundary.
func PageRoundUp(size uintptr) uintptr {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// PageRoundDown rounds addr down to the page boundary that contains it.
func PageRoundDown(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}

// PageOffset returns the offset of addr within its page.
func PageOffset(addr uintptr) uintptr {
	return addr & (PageSize - 1)
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameReleaser points to the function registered using
	// SetFrameReleaser.
	frameReleaser FrameReleaserFn
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameReleaserFn is a function that returns a frame to its allocator.
type FrameReleaserFn func(Frame)

// SetFrameAllocator registers a frame allocator function that will be used by
// the vmm code when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// SetFrameReleaser registers the function used for returning frames.
func SetFrameReleaser(releaseFn FrameReleaserFn) { frameReleaser = releaseFn }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator. The contents of the returned frame are undefined.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, ErrOutOfMemory
	}
	return frameAllocator()
}

// FreeFrame returns a frame previously obtained via AllocFrame.
func FreeFrame(f Frame) { frameReleaser(f) }
