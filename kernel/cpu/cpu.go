// Package cpu models the privileged state of a RISC-V hart that the memory
// management code interacts with: the satp translation register, the TLB
// flush instruction and the halt loop.
package cpu

import (
	"sync/atomic"

	"sv39os/kernel"
)

const (
	// SatpSv39 selects the Sv39 translation mode in the MODE field of satp.
	SatpSv39 = uint64(8) << 60

	pageShift = 12
)

// ErrHalted is the value that Halt unwinds with. Once a hart is halted no
// further instructions are executed on its behalf.
var ErrHalted = &kernel.Error{Module: "cpu", Message: "hart halted"}

// MakeSATP returns the satp value that enables Sv39 translation rooted at the
// page table located at the supplied physical address.
func MakeSATP(rootPhysAddr uintptr) uint64 {
	return SatpSv39 | uint64(rootPhysAddr>>pageShift)
}

// RootFromSATP extracts the physical address of the root page table encoded
// in a satp value.
func RootFromSATP(satp uint64) uintptr {
	return uintptr(satp&((1<<44)-1)) << pageShift
}

// Hart describes a single hardware thread.
type Hart struct {
	// ID is the hart identifier (mhartid).
	ID int

	satp       atomic.Uint64
	tlbFlushes atomic.Uint64
}

// WriteSATP stores val into the satp register.
func (h *Hart) WriteSATP(val uint64) {
	h.satp.Store(val)
}

// SATP returns the current contents of the satp register.
func (h *Hart) SATP() uint64 {
	return h.satp.Load()
}

// SfenceVMA flushes all TLB entries of this hart (sfence.vma zero, zero).
func (h *Hart) SfenceVMA() {
	h.tlbFlushes.Add(1)
}

// TLBFlushes returns the number of full TLB flushes performed by this hart.
func (h *Hart) TLBFlushes() uint64 {
	return h.tlbFlushes.Load()
}

// Halt stops instruction execution. Calls to Halt never return.
func Halt() {
	panic(ErrHalted)
}
