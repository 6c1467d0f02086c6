package pmm

import (
	"fmt"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"

	"sv39os/kernel"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
	"sv39os/kernel/sync"
)

const (
	// allocJunk and freeJunk are written over frames when they change
	// owner so that code relying on stale or uninitialized contents
	// breaks loudly.
	allocJunk = 0x05
	freeJunk  = 0x01

	btreeDegree = 32
)

var (
	errFreeOutOfRange = &kernel.Error{Module: "pmm", Message: "kfree: frame outside the allocator pool"}
	errDoubleFree     = &kernel.Error{Module: "pmm", Message: "kfree: frame is already free"}
)

// Allocator hands out the physical frames in [start, end). Free frames are
// kept in an ordered set so that allocation always returns the lowest free
// frame and releasing a frame twice is detected.
type Allocator struct {
	lock sync.Spinlock

	// The managed frame range.
	start, end mm.Frame

	free *btree.BTreeG[mm.Frame]
}

// NewAllocator creates an allocator that manages every whole frame in the
// physical range [startAddr, endAddr). The range must be backed by the RAM
// bank reachable via mm.Dmap.
func NewAllocator(startAddr, endAddr uintptr) *Allocator {
	alloc := &Allocator{
		start: mm.FrameFromAddress(mm.PageRoundUp(startAddr)),
		end:   mm.FrameFromAddress(endAddr),
		free: btree.NewG[mm.Frame](btreeDegree, func(a, b mm.Frame) bool {
			return a < b
		}),
	}

	for f := alloc.start; f < alloc.end; f++ {
		alloc.free.ReplaceOrInsert(f)
	}

	kfmt.Log.WithFields(logrus.Fields{
		"start": fmt.Sprintf("0x%x", alloc.start.Address()),
		"end":   fmt.Sprintf("0x%x", alloc.end.Address()),
		"pages": alloc.free.Len(),
	}).Debug("pmm: freerange")

	return alloc
}

// AllocFrame reserves the lowest free frame. The frame contents are filled
// with junk; callers that need zeroed memory must clear it themselves.
func (alloc *Allocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.lock.Acquire()
	f, ok := alloc.free.DeleteMin()
	alloc.lock.Release()

	if !ok {
		return mm.InvalidFrame, mm.ErrOutOfMemory
	}

	kernel.Memset(mm.FrameBytes(f), allocJunk)
	return f, nil
}

// FreeFrame returns a frame to the pool. Freeing a frame that does not belong
// to the pool or that is already free is a kernel bug.
func (alloc *Allocator) FreeFrame(f mm.Frame) {
	if f < alloc.start || f >= alloc.end {
		kfmt.Panic(errFreeOutOfRange)
		return
	}

	kernel.Memset(mm.FrameBytes(f), freeJunk)

	alloc.lock.Acquire()
	_, found := alloc.free.ReplaceOrInsert(f)
	alloc.lock.Release()

	if found {
		kfmt.Panic(errDoubleFree)
	}
}

// FreeFrames returns the number of free frames.
func (alloc *Allocator) FreeFrames() int {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.free.Len()
}

// FreeMemory returns the number of free bytes.
func (alloc *Allocator) FreeMemory() uintptr {
	return uintptr(alloc.FreeFrames()) * mm.PageSize
}

// TotalFrames returns the number of frames managed by the allocator.
func (alloc *Allocator) TotalFrames() int {
	return int(alloc.end - alloc.start)
}
