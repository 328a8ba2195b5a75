//go:build linux

package launcher

import (
	"fmt"
	"os"
	"os/exec"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// networkSyscalls are refused with EPERM when DenyNetwork is set.
var networkSyscalls = []string{"socket", "socketpair", "connect", "bind", "listen", "accept", "accept4"}

// Exec applies o to the current process and replaces it with target.
// It only returns on failure.
func Exec(o Options, target []string) error {
	if err := applyRlimits(o); err != nil {
		return err
	}
	if o.DenyNetwork {
		if err := denyNetwork(); err != nil {
			return err
		}
	}
	path, err := exec.LookPath(target[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(path, target, os.Environ())
}

func applyRlimits(o Options) error {
	set := func(resource int, v uint64, name string) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: v, Max: v}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if o.CPUTimeMs > 0 {
		secs := uint64((o.CPUTimeMs + 999) / 1000)
		// Soft limit raises SIGXCPU, which the engine reports as a timeout.
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: secs, Max: secs + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if o.MemoryMB > 0 {
		if err := set(unix.RLIMIT_AS, uint64(o.MemoryMB)*1024*1024, "as"); err != nil {
			return err
		}
	}
	if o.FileBytes > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(o.FileBytes), "fsize"); err != nil {
			return err
		}
	}
	if o.MaxProcs > 0 {
		if err := set(unix.RLIMIT_NPROC, uint64(o.MaxProcs), "nproc"); err != nil {
			return err
		}
	}
	return nil
}

func denyNetwork() error {
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	deny := seccomp.ActErrno.SetReturnCode(int16(unix.EPERM))
	for _, name := range networkSyscalls {
		call, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			// Not every architecture has every syscall.
			continue
		}
		if err := filter.AddRule(call, deny); err != nil {
			return fmt.Errorf("add seccomp rule %s: %w", name, err)
		}
	}
	if err := filter.SetNoNewPrivsBit(true); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}
