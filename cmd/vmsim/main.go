// Command vmsim boots a simulated RISC-V Sv39 machine and drives its virtual
// memory subsystem from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"sv39os/kernel/kfmt"
	"sv39os/kernel/memlayout"
)

var (
	configPath = flag.String("config", "", "path to a TOML file overriding the default machine layout.")
	logLevel   = flag.String("log-level", "info", "log level: trace, debug, info, warning, error.")
	logFormat  = flag.String("log-format", "text", "log format: text or json.")
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(layoutCmd), "")
	subcommands.Register(new(kvmCmd), "")
	subcommands.Register(new(uvmCmd), "")
	subcommands.Register(new(stressCmd), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if err := kfmt.ConfigureLog(os.Stderr, *logLevel, *logFormat == "json"); err != nil {
		fmt.Fprintf(os.Stderr, "vmsim: %v\n", err)
		os.Exit(2)
	}
	kfmt.SetOutputSink(os.Stdout)

	layout, err := loadLayout(*configPath)
	if err != nil {
		kfmt.Log.WithError(err).Error("error loading machine layout")
		os.Exit(2)
	}

	os.Exit(int(subcommands.Execute(context.Background(), layout)))
}

// loadLayout returns the default layout when path is empty and otherwise
// decodes the TOML file at path.
func loadLayout(path string) (*memlayout.Layout, error) {
	if path == "" {
		return memlayout.Default(), nil
	}
	return memlayout.Load(path)
}
