package mm

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"sv39os/kernel"
	"sv39os/kernel/kfmt"
)

var (
	// activeRAM is the RAM bank exposed through the direct map.
	activeRAM *RAM

	errDmapOutOfRange = &kernel.Error{Module: "mm", Message: "dmap: physical address outside RAM"}
)

// RAM is a bank of physical memory starting at a fixed physical address. It
// is backed by an anonymous host mapping so its contents start out zeroed and
// its backing storage is always page aligned.
type RAM struct {
	base uintptr
	mem  []byte
}

// MapRAM creates a RAM bank covering the physical range [base, base+size).
// Both arguments must be page aligned.
func MapRAM(base, size uintptr) (*RAM, error) {
	if PageOffset(base) != 0 || PageOffset(size) != 0 || size == 0 {
		return nil, fmt.Errorf("ram: bank [0x%x, 0x%x) is not page aligned", base, base+size)
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("ram: mmap %d bytes: %w", size, err)
	}

	return &RAM{base: base, mem: mem}, nil
}

// Base returns the physical address of the first byte of the bank.
func (r *RAM) Base() uintptr { return r.base }

// End returns the physical address one past the last byte of the bank.
func (r *RAM) End() uintptr { return r.base + uintptr(len(r.mem)) }

// Contains returns true if [physAddr, physAddr+size) lies inside the bank.
func (r *RAM) Contains(physAddr, size uintptr) bool {
	return physAddr >= r.base && size <= r.End()-physAddr && physAddr < r.End()
}

// Bytes returns the slice of host memory that backs [physAddr, physAddr+size)
// or nil if the range is not inside the bank.
func (r *RAM) Bytes(physAddr, size uintptr) []byte {
	if !r.Contains(physAddr, size) {
		return nil
	}
	off := physAddr - r.base
	return r.mem[off : off+size : off+size]
}

// Unmap releases the host mapping backing the bank. The bank must not be
// used afterwards.
func (r *RAM) Unmap() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

// SetRAM installs r as the bank reachable through Dmap.
func SetRAM(r *RAM) { activeRAM = r }

// Dmap returns the direct-mapped view of size bytes of physical memory
// starting at physAddr. Asking for memory outside RAM is a kernel bug.
func Dmap(physAddr, size uintptr) []byte {
	if activeRAM != nil {
		if b := activeRAM.Bytes(physAddr, size); b != nil {
			return b
		}
	}

	kfmt.Panic(errDmapOutOfRange)
	return nil
}

// FrameBytes returns the direct-mapped contents of frame f.
func FrameBytes(f Frame) []byte {
	return Dmap(f.Address(), PageSize)
}

// FramePointer returns a pointer to the first byte of frame f. The pointer
// refers to memory outside the Go heap and stays valid while the RAM bank is
// mapped.
func FramePointer(f Frame) unsafe.Pointer {
	return unsafe.Pointer(&FrameBytes(f)[0])
}
