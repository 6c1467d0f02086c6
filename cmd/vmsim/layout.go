package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
)

// layoutCmd implements subcommands.Command for the "layout" command.
type layoutCmd struct{}

// Name implements subcommands.Command.Name.
func (*layoutCmd) Name() string { return "layout" }

// Synopsis implements subcommands.Command.Synopsis.
func (*layoutCmd) Synopsis() string { return "print the effective machine layout" }

// Usage implements subcommands.Command.Usage.
func (*layoutCmd) Usage() string { return "layout\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (*layoutCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*layoutCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	l := args[0].(*memlayout.Layout)
	for _, r := range []struct {
		name       string
		start, end uintptr
	}{
		{"clint", l.CLINT, l.CLINT + l.CLINTSize},
		{"plic", l.PLIC, l.PLIC + l.PLICSize},
		{"uart0", l.UART0, l.UART0 + 0x1000},
		{"virtio0", l.Virtio0, l.Virtio0 + 0x1000},
		{"text", l.KernBase, l.EText},
		{"data", l.EText, l.End},
		{"free ram", l.End, l.PhysTop},
		{"trampoline", l.Trampoline(), l.Trampoline() + 0x1000},
	} {
		kfmt.Printf("%-10s 0x%016x - 0x%016x\n", r.name, r.start, r.end)
	}
	kfmt.Printf("%-10s 0x%016x\n", "tramp pa", l.TrampolinePA)
	kfmt.Printf("%-10s %d (kstack 0 at 0x%016x)\n", "nproc", l.NProc, l.KStack(0))

	return subcommands.ExitSuccess
}
