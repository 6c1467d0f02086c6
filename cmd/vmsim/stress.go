package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/vmm"
)

// stressCmd implements subcommands.Command for the "stress" command.
type stressCmd struct {
	procs  int
	rounds int
	size   uint64
}

// Name implements subcommands.Command.Name.
func (*stressCmd) Name() string { return "stress" }

// Synopsis implements subcommands.Command.Synopsis.
func (*stressCmd) Synopsis() string {
	return "run concurrent address space workers and check for leaked frames"
}

// Usage implements subcommands.Command.Usage.
func (*stressCmd) Usage() string { return "stress [-procs n] [-rounds n] [-size bytes]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (c *stressCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.procs, "procs", 4, "number of concurrent workers.")
	f.IntVar(&c.rounds, "rounds", 16, "number of address spaces each worker builds and releases.")
	f.Uint64Var(&c.size, "size", 16*uint64(mm.PageSize), "size in bytes each address space grows to.")
}

// Execute implements subcommands.Command.Execute.
func (c *stressCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 || c.procs <= 0 || c.rounds <= 0 || c.size < 2*uint64(mm.PageSize) {
		f.Usage()
		return subcommands.ExitUsageError
	}

	m, err := boot(args[0].(*memlayout.Layout))
	if err != nil {
		kfmt.Log.WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer m.shutdown()

	baseline := pmm.FreeMemory()

	// Building a per-process kernel page table reads the global kernel
	// page table, which is never modified after boot.
	g, ctx := errgroup.WithContext(ctx)
	for worker := 0; worker < c.procs; worker++ {
		g.Go(func() error {
			return guard(func() error {
				for round := 0; round < c.rounds; round++ {
					if err := ctx.Err(); err != nil {
						return err
					}
					if err := c.round(m.ks, worker, round); err != nil {
						return fmt.Errorf("worker %d round %d: %w", worker, round, err)
					}
				}
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		kfmt.Log.WithError(err).Error("stress failed")
		return subcommands.ExitFailure
	}

	fields := logrus.Fields{
		"procs":       c.procs,
		"rounds":      c.rounds,
		"free_pages":  pmm.FreeMemory() / mm.PageSize,
		"total_pages": pmm.TotalMemory() / mm.PageSize,
	}
	if leaked := baseline - pmm.FreeMemory(); leaked != 0 {
		kfmt.Log.WithFields(fields).Errorf("%d pages leaked", leaked/mm.PageSize)
		return subcommands.ExitFailure
	}

	kfmt.Log.WithFields(fields).Info("stress completed")
	return subcommands.ExitSuccess
}

// round builds an address space, exercises it and releases it.
func (c *stressCmd) round(ks *vmm.KernelSpace, worker, round int) error {
	as, err := errorOf(vmm.NewAddressSpace(ks))
	if err != nil {
		return err
	}
	defer as.Release()

	if _, kerr := as.Sbrk(int(c.size)); kerr != nil {
		return kerr
	}

	// Place a string across the boundary of the first two pages.
	msg := []byte(fmt.Sprintf("worker %d round %d\x00", worker, round))
	va := mm.PageSize - uintptr(len(msg)/2)
	if kerr := as.CopyOut(va, msg); kerr != nil {
		return kerr
	}

	child, err := errorOf(as.Fork())
	if err != nil {
		return err
	}
	defer child.Release()

	got := make([]byte, len(msg)+8)
	n, kerr := child.CopyInStr(got, va, uintptr(len(got)))
	if kerr != nil {
		return kerr
	}
	if !bytes.Equal(got[:n], msg) {
		return fmt.Errorf("forked copy holds %q; expected %q", got[:n], msg)
	}

	if _, kerr = as.Sbrk(-int(c.size) / 2); kerr != nil {
		return kerr
	}
	if _, kerr = child.Sbrk(-int(child.Size())); kerr != nil {
		return kerr
	}

	return nil
}
