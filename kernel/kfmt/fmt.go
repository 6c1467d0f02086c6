// Package kfmt implements the kernel console: formatted output that is
// buffered until a console sink is attached, the fatal-error reporter and the
// structured logger used by the boot code.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	// outputMu serializes writes to the sink so that lines emitted by
	// different harts are not interleaved.
	outputMu sync.Mutex

	// earlyPrintBuffer is a ring buffer that stores Printf output before a
	// console has been attached via SetOutputSink.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// Printf writes a formatted message to the console. The supported verbs are
// the ones understood by fmt.Printf; the kernel code only uses %s, %d, %x and
// %p-style hex addresses.
//
// If no console is attached, the output is buffered into a ring-buffer and
// will be flushed to the sink once SetOutputSink is called.
func Printf(format string, args ...interface{}) {
	outputMu.Lock()
	defer outputMu.Unlock()

	if outputSink == nil {
		_, _ = fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}

	_, _ = fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the console.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		Printf(format, args...)
		return
	}

	_, _ = fmt.Fprintf(w, format, args...)
}
