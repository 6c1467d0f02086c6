package vmm

import (
	"testing"

	"sv39os/kernel/mm"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = PageTableEntryFlag(1 << 10)
		flag2 = PageTableEntryFlag(1 << 21)
	)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if !pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return true")
	}

	if pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return false")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte.HasAnyFlag(flag1 | flag2) {
		t.Fatalf("expected HasAnyFlags to return false")
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte      pageTableEntry
		physAddr = uintptr(0x87f6a000)
	)

	pte.SetFlags(FlagValid | FlagRead | FlagWrite | FlagAccessed)
	pte.SetFrame(mm.FrameFromAddress(physAddr))

	if exp, got := pageTableEntry(0x21fda800|0x47), pte; got != exp {
		t.Fatalf("expected pte to be 0x%x; got 0x%x", uint64(exp), uint64(got))
	}

	if got := pte.Address(); got != physAddr {
		t.Fatalf("expected pte address to be 0x%x; got 0x%x", physAddr, got)
	}

	if exp, got := FlagValid|FlagRead|FlagWrite|FlagAccessed, pte.Flags(); got != exp {
		t.Fatalf("expected flags 0x%x; got 0x%x", uint64(exp), uint64(got))
	}

	// Replacing the frame keeps the flags.
	pte.SetFrame(mm.FrameFromAddress(0x80001000))
	if exp, got := pageTableEntry(0x20000400|0x47), pte; got != exp {
		t.Fatalf("expected pte to be 0x%x; got 0x%x", uint64(exp), uint64(got))
	}
}

func TestPageTableEntryKind(t *testing.T) {
	specs := []struct {
		flags   PageTableEntryFlag
		isLeaf  bool
		isTable bool
	}{
		{0, false, false},
		{FlagRead, false, false},
		{FlagValid, false, true},
		{FlagValid | FlagAccessed | FlagDirty, false, true},
		{FlagValid | FlagRead, true, false},
		{FlagValid | FlagWrite, true, false},
		{FlagValid | FlagExecute | FlagUser, true, false},
	}

	for specIndex, spec := range specs {
		pte := newPageTableEntry(mm.Frame(0x80000), spec.flags)
		if got := pte.IsLeaf(); got != spec.isLeaf {
			t.Errorf("[spec %d] expected IsLeaf to return %t; got %t", specIndex, spec.isLeaf, got)
		}
		if got := pte.IsTable(); got != spec.isTable {
			t.Errorf("[spec %d] expected IsTable to return %t; got %t", specIndex, spec.isTable, got)
		}
	}
}

func TestPageTableIndex(t *testing.T) {
	specs := []struct {
		virtAddr uintptr
		indices  [pageLevels]int
	}{
		{0, [pageLevels]int{0, 0, 0}},
		{0x1000, [pageLevels]int{1, 0, 0}},
		{0x200000, [pageLevels]int{0, 1, 0}},
		{0x80000000, [pageLevels]int{0, 0, 2}},
		{0x10001000, [pageLevels]int{1, 128, 0}},
		{mm.MaxVA - mm.PageSize, [pageLevels]int{511, 511, 255}},
	}

	for specIndex, spec := range specs {
		for level := uint8(0); level < pageLevels; level++ {
			if got := pageTableIndex(level, spec.virtAddr); got != spec.indices[level] {
				t.Errorf("[spec %d] expected level %d index for 0x%x to be %d; got %d", specIndex, level, spec.virtAddr, spec.indices[level], got)
			}
		}
	}
}
