package vmm

import (
	"testing"

	"sv39os/kernel"
	"sv39os/kernel/cpu"
	"sv39os/kernel/mm"
)

func setupKernelSpace(t *testing.T) *KernelSpace {
	t.Helper()

	layout := setupMachine(t)
	ks, err := Init(layout, &cpu.Hart{})
	if err != nil {
		t.Fatal(err)
	}
	return ks
}

func TestAddressSpaceLifecycle(t *testing.T) {
	ks := setupKernelSpace(t)
	baseline := freePages()

	as, err := NewAddressSpace(ks)
	if err != nil {
		t.Fatal(err)
	}
	if as.Size() != 0 {
		t.Fatalf("expected a new address space to be empty; got size %d", as.Size())
	}
	if !as.PageTable().Valid() || !as.KernelPageTable().Valid() {
		t.Fatal("expected both page tables to be allocated")
	}

	if err = as.LoadInitCode([]byte("\x13\x00\x00\x00")); err != nil {
		t.Fatal(err)
	}
	if exp := mm.PageSize; as.Size() != exp {
		t.Fatalf("expected size %d; got %d", exp, as.Size())
	}

	old, err := as.Sbrk(2*int(mm.PageSize) + 10)
	if err != nil {
		t.Fatal(err)
	}
	if old != mm.PageSize {
		t.Fatalf("expected Sbrk to return the old size %d; got %d", mm.PageSize, old)
	}
	if exp := 3*mm.PageSize + 10; as.Size() != exp {
		t.Fatalf("expected size %d; got %d", exp, as.Size())
	}

	if err = as.CopyOut(3*mm.PageSize, []byte("brk\x00")); err != nil {
		t.Fatal(err)
	}
	str := make([]byte, 16)
	n, err := as.CopyInStr(str, 3*mm.PageSize, uintptr(len(str)))
	if err != nil || string(str[:n]) != "brk\x00" {
		t.Fatalf("expected to read back \"brk\\x00\"; got %q (%v)", str[:n], err)
	}

	old, err = as.Sbrk(-int(2*mm.PageSize + 10))
	if err != nil {
		t.Fatal(err)
	}
	if exp := 3*mm.PageSize + 10; old != exp {
		t.Fatalf("expected Sbrk to return the old size %d; got %d", exp, old)
	}
	if _, ok := as.PageTable().WalkAddr(mm.PageSize); ok {
		t.Fatal("expected page 1 to be released")
	}

	if old, err = as.Sbrk(0); err != nil || old != mm.PageSize {
		t.Fatalf("expected Sbrk(0) to return (%d, nil); got (%d, %v)", mm.PageSize, old, err)
	}

	as.Release()
	if got := freePages(); got != baseline {
		t.Fatalf("expected free pages to return to %d; got %d", baseline, got)
	}
	if as.PageTable().Valid() || as.KernelPageTable().Valid() {
		t.Fatal("expected page tables to be invalidated")
	}
}

func TestAddressSpaceSbrkErrors(t *testing.T) {
	ks := setupKernelSpace(t)

	as, err := NewAddressSpace(ks)
	if err != nil {
		t.Fatal(err)
	}
	defer as.Release()

	if _, err = as.Sbrk(int(maxUserSize) + 1); err != ErrAddressSpaceFull {
		t.Fatalf("expected to get ErrAddressSpaceFull; got %v", err)
	}
	if _, err = as.Sbrk(-1); err != ErrBadAddress {
		t.Fatalf("expected to get ErrBadAddress; got %v", err)
	}

	limitFrames(t, 0)
	if _, err = as.Sbrk(int(mm.PageSize)); err != mm.ErrOutOfMemory {
		t.Fatalf("expected to get ErrOutOfMemory; got %v", err)
	}
	if as.Size() != 0 {
		t.Fatalf("expected size to stay 0; got %d", as.Size())
	}
}

func TestAddressSpaceFork(t *testing.T) {
	ks := setupKernelSpace(t)
	baseline := freePages()

	parent, err := NewAddressSpace(ks)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = parent.Sbrk(2 * int(mm.PageSize)); err != nil {
		t.Fatal(err)
	}
	if err = parent.CopyOut(mm.PageSize-2, []byte("fork")); err != nil {
		t.Fatal(err)
	}

	child, err := parent.Fork()
	if err != nil {
		t.Fatal(err)
	}
	if child.Size() != parent.Size() {
		t.Fatalf("expected child size %d; got %d", parent.Size(), child.Size())
	}
	if child.KernelPageTable().Frame() == parent.KernelPageTable().Frame() {
		t.Fatal("expected the child to get its own kernel page table")
	}

	if err = parent.CopyOut(mm.PageSize-2, []byte("FORK")); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 4)
	if err = child.CopyIn(got, mm.PageSize-2); err != nil {
		t.Fatal(err)
	}
	if string(got) != "fork" {
		t.Fatalf("expected child to keep \"fork\"; got %q", got)
	}

	child.Release()
	parent.Release()
	if got := freePages(); got != baseline {
		t.Fatalf("expected free pages to return to %d; got %d", baseline, got)
	}
}

func TestAddressSpaceForkOutOfMemory(t *testing.T) {
	ks := setupKernelSpace(t)

	parent, err := NewAddressSpace(ks)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = parent.Sbrk(4 * int(mm.PageSize)); err != nil {
		t.Fatal(err)
	}
	baseline := freePages()

	origAllocFrameFn := allocFrameFn
	defer func() { allocFrameFn = origAllocFrameFn }()

	for limit := 0; ; limit++ {
		remaining := limit
		allocFrameFn = func() (mm.Frame, *kernel.Error) {
			if remaining == 0 {
				return mm.InvalidFrame, mm.ErrOutOfMemory
			}
			remaining--
			return origAllocFrameFn()
		}

		child, err := parent.Fork()
		if err == nil {
			child.Release()
			break
		}
		if err != mm.ErrOutOfMemory {
			t.Fatalf("[limit %d] expected to get ErrOutOfMemory; got %v", limit, err)
		}
		if got := freePages(); got != baseline {
			t.Fatalf("[limit %d] expected free pages to return to %d; got %d", limit, baseline, got)
		}
	}

	if got := freePages(); got != baseline {
		t.Fatalf("expected free pages to return to %d; got %d", baseline, got)
	}
	parent.Release()
}
