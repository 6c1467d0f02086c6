package vmm

import (
	"testing"

	"sv39os/kernel/mm"
)

func TestMapPagesRoundTrip(t *testing.T) {
	setupMachine(t)

	pt, err := NewPageTable()
	if err != nil {
		t.Fatal(err)
	}

	var frames [3]mm.Frame
	for i := range frames {
		if frames[i], err = mm.AllocFrame(); err != nil {
			t.Fatal(err)
		}
	}

	// Leaf frames are handed out in ascending order, so the three frames
	// are physically contiguous.
	base := uintptr(0x5000)
	if err = pt.MapPages(base, 3*mm.PageSize, frames[0].Address(), FlagRead|FlagWrite|FlagUser); err != nil {
		t.Fatal(err)
	}

	for i, frame := range frames {
		va := base + uintptr(i)*mm.PageSize
		pa, ok := pt.WalkAddr(va)
		if !ok {
			t.Fatalf("expected 0x%x to be mapped", va)
		}
		if pa != frame.Address() {
			t.Fatalf("expected 0x%x to map to 0x%x; got 0x%x", va, frame.Address(), pa)
		}

		pte := pt.lookup(va)
		if exp := FlagValid | FlagRead | FlagWrite | FlagUser; pte.Flags() != exp {
			t.Fatalf("expected flags 0x%x; got 0x%x", uint64(exp), uint64(pte.Flags()))
		}
	}

	before := freePages()
	pt.Unmap(base, 3, true)
	if exp, got := 3, freePages()-before; got != exp {
		t.Fatalf("expected %d frames to be released; got %d", exp, got)
	}

	for i := uintptr(0); i < 3; i++ {
		if _, ok := pt.WalkAddr(base + i*mm.PageSize); ok {
			t.Fatalf("expected 0x%x to be unmapped", base+i*mm.PageSize)
		}
	}
}

func TestMapPagesUnaligned(t *testing.T) {
	setupMachine(t)

	pt, _ := NewPageTable()
	frame, _ := mm.AllocFrame()

	// The range [0x1800, 0x2800) touches two pages.
	if err := pt.MapPages(0x1800, mm.PageSize, frame.Address(), FlagRead|FlagUser); err != nil {
		t.Fatal(err)
	}

	for _, va := range []uintptr{0x1000, 0x2000} {
		if _, ok := pt.WalkAddr(va); !ok {
			t.Errorf("expected 0x%x to be mapped", va)
		}
	}
	for _, va := range []uintptr{0x0, 0x3000} {
		if _, ok := pt.WalkAddr(va); ok {
			t.Errorf("expected 0x%x to be unmapped", va)
		}
	}
}

func TestMapPagesErrors(t *testing.T) {
	setupMachine(t)

	pt, _ := NewPageTable()
	frame, _ := mm.AllocFrame()

	if err := pt.MapPages(0x1000, mm.PageSize, frame.Address(), FlagRead); err != nil {
		t.Fatal(err)
	}

	t.Run("remap", func(t *testing.T) {
		expectFatal(t, errRemap, func() {
			_ = pt.MapPages(0x1000, mm.PageSize, frame.Address(), FlagRead)
		})
	})

	t.Run("zero size", func(t *testing.T) {
		expectFatal(t, errMapZeroSize, func() {
			_ = pt.MapPages(0x8000, 0, frame.Address(), FlagRead)
		})
	})

	t.Run("out of memory", func(t *testing.T) {
		limitFrames(t, 0)
		if err := pt.MapPages(0x40000000, mm.PageSize, frame.Address(), FlagRead); err != mm.ErrOutOfMemory {
			t.Fatalf("expected to get ErrOutOfMemory; got %v", err)
		}
	})
}

func TestUnmapErrors(t *testing.T) {
	setupMachine(t)

	pt, _ := NewPageTable()
	frame, _ := mm.AllocFrame()

	if err := pt.MapPages(0x1000, mm.PageSize, frame.Address(), FlagRead); err != nil {
		t.Fatal(err)
	}

	t.Run("not aligned", func(t *testing.T) {
		expectFatal(t, errUnmapNotAligned, func() { pt.Unmap(0x1001, 1, false) })
	})

	t.Run("missing table", func(t *testing.T) {
		expectFatal(t, errUnmapWalk, func() { pt.Unmap(0x40000000, 1, false) })
	})

	t.Run("not mapped", func(t *testing.T) {
		expectFatal(t, errUnmapNotMapped, func() { pt.Unmap(0x2000, 1, false) })
	})

	t.Run("not a leaf", func(t *testing.T) {
		pte := pt.lookup(0x1000)
		orig := *pte
		pte.ClearFlags(FlagRead)
		defer func() { *pte = orig }()

		expectFatal(t, errUnmapNotLeaf, func() { pt.Unmap(0x1000, 1, false) })
	})

	t.Run("keep frames", func(t *testing.T) {
		before := freePages()
		pt.Unmap(0x1000, 1, false)
		if got := freePages() - before; got != 0 {
			t.Fatalf("expected no frames to be released; got %d", got)
		}
		if pt.lookup(0x1000) != nil {
			t.Fatal("expected 0x1000 to be unmapped")
		}
	})
}

func TestWalkAddr(t *testing.T) {
	setupMachine(t)

	pt, _ := NewPageTable()
	frame, _ := mm.AllocFrame()

	if err := pt.MapPages(0x1000, mm.PageSize, frame.Address(), FlagRead); err != nil {
		t.Fatal(err)
	}
	if err := pt.MapPages(0x2000, mm.PageSize, frame.Address(), FlagRead|FlagUser); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		va     uintptr
		expPA  uintptr
		expOK  bool
		reason string
	}{
		{0x1000, 0, false, "kernel-only page"},
		{0x2000, frame.Address(), true, "user page"},
		{0x2fff, frame.Address(), true, "user page, last byte"},
		{0x3000, 0, false, "unmapped page"},
		{0x40000000, 0, false, "missing tables"},
		{mm.MaxVA, 0, false, "out of range"},
	}

	for _, spec := range specs {
		pa, ok := pt.WalkAddr(spec.va)
		if pa != spec.expPA || ok != spec.expOK {
			t.Errorf("[%s] expected WalkAddr(0x%x) to return (0x%x, %t); got (0x%x, %t)", spec.reason, spec.va, spec.expPA, spec.expOK, pa, ok)
		}
	}
}
