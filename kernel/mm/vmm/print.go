package vmm

import (
	"io"

	"sv39os/kernel/kfmt"
	"sv39os/kernel/mm"
)

// consoleWriter adapts the kernel console to io.Writer.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}

// Print dumps the page table to the console.
func (pt PageTable) Print() {
	pt.Fprint(consoleWriter{})
}

// Fprint writes a dump of the page table to w. Each valid entry is listed
// on its own line, indented by one ".. " per level below the root and
// followed by the entries of the table it points to:
//
//	page table 0x0000000087f6e000
//	.. 0: pte 0x0000000021fda801 pa 0x0000000087f6a000
//	.. .. 0: pte 0x0000000021fda401 pa 0x0000000087f69000
//	.. .. .. 0: pte 0x0000000021fdac1f pa 0x0000000087f6b000
func (pt PageTable) Fprint(w io.Writer) {
	var writers [pageLevels + 1]io.Writer
	writers[0] = w
	for depth := 1; depth <= pageLevels; depth++ {
		writers[depth] = &kfmt.PrefixWriter{Sink: writers[depth-1], Prefix: []byte(".. ")}
	}

	kfmt.Fprintf(w, "page table 0x%016x\n", pt.root.Address())
	visitTree(pt.root, pageLevels-1, 0, func(level uint8, index int, _ uintptr, pte *pageTableEntry) bool {
		kfmt.Fprintf(writers[pageLevels-int(level)], "%d: pte 0x%016x pa 0x%016x\n", index, uint64(*pte), pte.Address())
		return true
	}, nil)
}

// Stats returns the number of table frames and leaf mappings reachable
// from pt.
func (pt PageTable) Stats() (tables, leaves int) {
	visitTree(pt.root, pageLevels-1, 0, func(_ uint8, _ int, _ uintptr, pte *pageTableEntry) bool {
		if pte.IsLeaf() {
			leaves++
		}
		return true
	}, func(uint8, mm.Frame) {
		tables++
	})
	return tables, leaves
}
