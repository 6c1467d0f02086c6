package main

import (
	"context"
	"encoding/hex"
	"flag"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
	"sv39os/kernel/mm"
	"sv39os/kernel/mm/pmm"
	"sv39os/kernel/mm/vmm"
)

// initCode is the classic first user program: it calls exec("/init", argv)
// and then loops on exit().
const initCode = "17050000130545029705000093853502" +
	"93087000730000009308200073000000" +
	"eff09fff2f696e697400002400000000" +
	"00000000"

// uvmCmd implements subcommands.Command for the "uvm" command.
type uvmCmd struct {
	size     uint64
	fork     bool
	initCode string
}

// Name implements subcommands.Command.Name.
func (*uvmCmd) Name() string { return "uvm" }

// Synopsis implements subcommands.Command.Synopsis.
func (*uvmCmd) Synopsis() string { return "build, grow and optionally fork a user address space" }

// Usage implements subcommands.Command.Usage.
func (*uvmCmd) Usage() string { return "uvm [-size bytes] [-fork] [-initcode hex]\n" }

// SetFlags implements subcommands.Command.SetFlags.
func (c *uvmCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.size, "size", 4*uint64(mm.PageSize), "size in bytes to grow the user image to.")
	f.BoolVar(&c.fork, "fork", false, "duplicate the address space and dump the copy as well.")
	f.StringVar(&c.initCode, "initcode", initCode, "hex encoded code loaded at address 0; empty to skip.")
}

// Execute implements subcommands.Command.Execute.
func (c *uvmCmd) Execute(_ context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	code, err := hex.DecodeString(c.initCode)
	if err != nil {
		kfmt.Log.WithError(err).Error("invalid -initcode")
		return subcommands.ExitUsageError
	}

	m, err := boot(args[0].(*memlayout.Layout))
	if err != nil {
		kfmt.Log.WithError(err).Error("boot failed")
		return subcommands.ExitFailure
	}
	defer m.shutdown()

	baseline := pmm.FreeMemory()
	err = guard(func() error {
		as, err := errorOf(vmm.NewAddressSpace(m.ks))
		if err != nil {
			return err
		}
		defer as.Release()

		if len(code) != 0 {
			if kerr := as.LoadInitCode(code); kerr != nil {
				return kerr
			}
		}

		if grow := int(c.size) - int(as.Size()); grow > 0 {
			if _, kerr := as.Sbrk(grow); kerr != nil {
				return kerr
			}
		}

		kfmt.Printf("user address space: %d bytes\n", as.Size())
		as.PageTable().Print()

		if !c.fork {
			return nil
		}

		child, err := errorOf(as.Fork())
		if err != nil {
			return err
		}
		defer child.Release()

		kfmt.Printf("forked address space: %d bytes\n", child.Size())
		child.PageTable().Print()
		return nil
	})
	if err != nil {
		kfmt.Log.WithError(err).Error("uvm failed")
		return subcommands.ExitFailure
	}

	kfmt.Log.WithFields(logrus.Fields{
		"free_pages": pmm.FreeMemory() / mm.PageSize,
		"leaked":     (baseline - pmm.FreeMemory()) / mm.PageSize,
	}).Info("user address spaces released")
	return subcommands.ExitSuccess
}
