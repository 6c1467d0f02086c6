// Package sync provides the spinlock used to serialize access to structures
// shared by all harts, such as the physical frame allocator.
package sync

import (
	"runtime"
	"sync/atomic"
)

// attemptsBeforeYielding is the number of failed acquisition attempts after
// which a spinning hart gives up its time slice.
const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked by spinning harts; mocked by tests.
	yieldFn = runtime.Gosched
)

// Spinlock implements a lock where each hart trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the current hart. Any
// attempt to re-acquire a lock already held by the current hart will cause a
// deadlock.
func (l *Spinlock) Acquire() {
	for attempt := uint32(1); !atomic.CompareAndSwapUint32(&l.state, 0, 1); attempt++ {
		if attempt%attemptsBeforeYielding == 0 {
			yieldFn()
		}
	}
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock allowing other harts to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Holding returns true if the lock is currently held.
func (l *Spinlock) Holding() bool {
	return atomic.LoadUint32(&l.state) == 1
}
