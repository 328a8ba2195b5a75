//go:build linux

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"codeblack/internal/judge/sandbox/launcher"
	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/spec"
	"codeblack/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const waitDelay = 500 * time.Millisecond

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux process engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.PathEnv == "" {
		cfg.PathEnv = os.Getenv("PATH")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	outputLimit := runSpec.Limits.OutputBytes
	if outputLimit <= 0 {
		outputLimit = e.cfg.StdoutStderrMaxBytes
	}

	argv := e.argv(runSpec, outputLimit)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = runSpec.WorkDir
	cmd.Env = e.buildEnv(runSpec)
	cmd.Stdin = strings.NewReader(runSpec.Stdin)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.WaitDelay = waitDelay

	var pid atomic.Int64
	killGroup := func() { killProcessGroup(int(pid.Load())) }
	stdout := &cappedBuffer{limit: outputLimit, onExceed: killGroup}
	stderr := &cappedBuffer{limit: outputLimit, onExceed: killGroup}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start process: %w", err)
	}
	pid.Store(int64(cmd.Process.Pid))

	if e.cfg.InitPath == "" {
		if err := applyRlimits(cmd.Process.Pid, runSpec.Limits); err != nil {
			logger.Warn(ctx, "apply rlimit failed", zap.String("submission_id", runSpec.SubmissionID), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if wall := durationFromMs(runSpec.Limits.WallTimeMs); wall > 0 {
			timer := time.NewTimer(wall)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	runResult := result.RunResult{
		ExitCode:       exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:         cpuTimeMs(cmd.ProcessState),
		WallTimeMs:     time.Since(start).Milliseconds(),
		MemoryKB:       memoryPeakKB(cmd.ProcessState),
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		OutputExceeded: stdout.Exceeded() || stderr.Exceeded(),
	}
	if timedOut.Load() || killedByCPULimit(cmd.ProcessState) {
		runResult.TimedOut = true
		runResult.ExitCode = -1
	}
	if ctx.Err() != nil && !runResult.TimedOut {
		return runResult, ctx.Err()
	}
	return runResult, nil
}

// argv wraps the command in the launcher when one is configured.
func (e *linuxEngine) argv(runSpec spec.RunSpec, outputLimit int64) []string {
	if e.cfg.InitPath == "" {
		return runSpec.Cmd
	}
	opts := launcher.Options{
		CPUTimeMs:   runSpec.Limits.CPUTimeMs,
		MemoryMB:    runSpec.Limits.MemoryMB,
		FileBytes:   outputLimit,
		MaxProcs:    e.cfg.MaxProcs,
		DenyNetwork: e.cfg.DenyNetwork,
	}
	return opts.Argv(e.cfg.InitPath, runSpec.Cmd)
}

func (e *linuxEngine) buildEnv(runSpec spec.RunSpec) []string {
	env := []string{
		"PATH=" + e.cfg.PathEnv,
		"HOME=" + runSpec.WorkDir,
		"LANG=C.UTF-8",
	}
	return append(env, runSpec.Env...)
}

func applyRlimits(pid int, limits spec.ResourceLimit) error {
	var errs []error
	if limits.CPUTimeMs > 0 {
		secs := uint64((limits.CPUTimeMs + 999) / 1000)
		lim := &unix.Rlimit{Cur: secs, Max: secs + 1}
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, lim, nil); err != nil {
			errs = append(errs, fmt.Errorf("cpu: %w", err))
		}
	}
	if limits.MemoryMB > 0 {
		limitBytes := uint64(limits.MemoryMB) * 1024 * 1024
		lim := &unix.Rlimit{Cur: limitBytes, Max: limitBytes}
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, lim, nil); err != nil {
			errs = append(errs, fmt.Errorf("address space: %w", err))
		}
	}
	return errors.Join(errs...)
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func killedByCPULimit(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGXCPU
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}

func memoryPeakKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}
