package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"sv39os/kernel/cpu"
	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm/vmm"
)

// kvmCmd implements subcommands.Command for the "kvm" command.
type kvmCmd struct {
	procKernel bool
	dump       bool
}

// Name implements subcommands.Command.Name.
func (*kvmCmd) Name() string { return "kvm" }

// Synopsis implements subcommands.Command.Synopsis.
func (*kvmCmd) Synopsis() string { return "boot the machine and dump the kernel page table" }

// Usage implements subcommands.Command.Usage.
func (*kvmCmd) Usage() string { return "kvm [-pkvm] [-dump=false]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (c *kvmCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.procKernel, "pkvm", false, "also build and dump a per-process kernel page table.")
	f.BoolVar(&c.dump, "dump", true, "print every page table entry; otherwise only print a summary.")
}

// Execute implements subcommands.Command.Execute.
func (c *kvmCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	m, err := boot(args[0].(*memlayout.Layout))
	if err != nil {
		kfmt.Log.WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer m.shutdown()

	err = guard(func() error {
		kfmt.Printf("satp 0x%016x: active root 0x%016x\n", m.hart.SATP(), cpu.RootFromSATP(m.hart.SATP()))
		c.report("kernel", m.ks.PageTable())
		if !c.procKernel {
			return nil
		}

		pkt, err := errorOf(m.ks.NewProcKernelSpace())
		if err != nil {
			return err
		}
		defer vmm.FreeProcKernelSpace(pkt)

		c.report("process kernel", pkt)
		return nil
	})
	if err != nil {
		kfmt.Log.WithError(err).Error("kvm failed")
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

func (c *kvmCmd) report(name string, pt vmm.PageTable) {
	if c.dump {
		pt.Print()
	}

	tables, leaves := pt.Stats()
	kfmt.Printf("%s page table: %d tables, %d mappings\n", name, tables, leaves)
}
