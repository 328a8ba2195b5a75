// Package launcher is the exec shim placed between the engine and untrusted
// programs. It applies limits to itself and then replaces its image with the
// target, so no limit is ever applied to an already running child.
package launcher

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// Options are the restrictions applied before exec.
type Options struct {
	CPUTimeMs   int64
	MemoryMB    int64
	FileBytes   int64
	MaxProcs    int64
	DenyNetwork bool
}

// Argv builds the launcher command line for target.
func (o Options) Argv(initPath string, target []string) []string {
	argv := []string{initPath}
	if o.CPUTimeMs > 0 {
		argv = append(argv, "-cpu-ms", strconv.FormatInt(o.CPUTimeMs, 10))
	}
	if o.MemoryMB > 0 {
		argv = append(argv, "-mem-mb", strconv.FormatInt(o.MemoryMB, 10))
	}
	if o.FileBytes > 0 {
		argv = append(argv, "-fsize", strconv.FormatInt(o.FileBytes, 10))
	}
	if o.MaxProcs > 0 {
		argv = append(argv, "-nproc", strconv.FormatInt(o.MaxProcs, 10))
	}
	if o.DenyNetwork {
		argv = append(argv, "-deny-network")
	}
	argv = append(argv, "--")
	return append(argv, target...)
}

// Parse reads the arguments produced by Argv, without the program name.
func Parse(args []string) (Options, []string, error) {
	var o Options
	fs := flag.NewFlagSet("sandbox-init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Int64Var(&o.CPUTimeMs, "cpu-ms", 0, "CPU time limit in milliseconds")
	fs.Int64Var(&o.MemoryMB, "mem-mb", 0, "address space limit in MB")
	fs.Int64Var(&o.FileBytes, "fsize", 0, "max bytes per written file")
	fs.Int64Var(&o.MaxProcs, "nproc", 0, "max processes for the sandbox uid")
	fs.BoolVar(&o.DenyNetwork, "deny-network", false, "block socket creation")
	if err := fs.Parse(args); err != nil {
		return Options{}, nil, fmt.Errorf("parse launcher flags: %w", err)
	}
	target := fs.Args()
	if len(target) == 0 {
		return Options{}, nil, fmt.Errorf("command is required")
	}
	return o, target, nil
}
