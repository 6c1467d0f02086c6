package mm

import (
	"testing"

	"sv39os/kernel"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
		{0x80000000, Frame(0x80000)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestRounding(t *testing.T) {
	specs := []struct {
		input          uintptr
		expUp, expDown uintptr
		expOffset      uintptr
	}{
		{0, 0, 0, 0},
		{1, 4096, 0, 1},
		{4095, 4096, 0, 4095},
		{4096, 4096, 4096, 0},
		{4097, 8192, 4096, 1},
		{MaxVA - 1, MaxVA, MaxVA - PageSize, PageSize - 1},
	}

	for specIndex, spec := range specs {
		if got := PageRoundUp(spec.input); got != spec.expUp {
			t.Errorf("[spec %d] expected PageRoundUp(0x%x) to return 0x%x; got 0x%x", specIndex, spec.input, spec.expUp, got)
		}
		if got := PageRoundDown(spec.input); got != spec.expDown {
			t.Errorf("[spec %d] expected PageRoundDown(0x%x) to return 0x%x; got 0x%x", specIndex, spec.input, spec.expDown, got)
		}
		if got := PageOffset(spec.input); got != spec.expOffset {
			t.Errorf("[spec %d] expected PageOffset(0x%x) to return 0x%x; got 0x%x", specIndex, spec.input, spec.expOffset, got)
		}
	}

	if exp := uintptr(1) << 38; MaxVA != exp {
		t.Fatalf("expected MaxVA to be 0x%x; got 0x%x", exp, MaxVA)
	}
}

func TestFrameAllocator(t *testing.T) {
	defer func() {
		SetFrameAllocator(nil)
		SetFrameReleaser(nil)
	}()

	if _, err := AllocFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory without a registered allocator; got %v", err)
	}

	var allocCalled bool
	customAlloc := func() (Frame, *kernel.Error) {
		allocCalled = true
		return FrameFromAddress(0xbadf00), nil
	}

	SetFrameAllocator(customAlloc)

	frame, err := AllocFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if exp := FrameFromAddress(0xbadf00); frame != exp {
		t.Errorf("expected allocated frame to be %v; got %v", exp, frame)
	}

	if !allocCalled {
		t.Error("expected custom allocator to be invoked after being registered with SetFrameAllocator")
	}

	var released Frame
	SetFrameReleaser(func(f Frame) { released = f })
	FreeFrame(frame)
	if released != frame {
		t.Errorf("expected frame %v to be released; got %v", frame, released)
	}
}
