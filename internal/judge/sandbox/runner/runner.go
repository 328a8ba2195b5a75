// Package runner turns language specs into compile and run commands.
package runner

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"codeblack/internal/judge/sandbox/engine"
	"codeblack/internal/judge/sandbox/observer"
	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/spec"
	appErr "codeblack/pkg/errors"
)

// CompileRequest describes one compilation task.
// The source file must already exist in WorkDir.
type CompileRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	WorkDir      string
	Limits       spec.ResourceLimit
}

// RunRequest describes one execution of a prepared program.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     profile.LanguageSpec
	WorkDir      string
	Stdin        string
	Limits       spec.ResourceLimit
}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}

// DefaultRunner implements compile/run workflows for supported languages.
type DefaultRunner struct {
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine) *DefaultRunner {
	return NewRunnerWithObserver(eng, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &DefaultRunner{eng: eng, metrics: metrics}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if req.WorkDir == "" {
		return result.CompileResult{}, appErr.ValidationError("work_dir", "required")
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}
	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language, req.WorkDir)
	if err != nil {
		return result.CompileResult{}, err
	}

	runRes, err := r.eng.Run(ctx, spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      req.WorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		Limits:       req.Limits,
	})
	compileRes := result.CompileResult{
		OK:       err == nil && runRes.ExitCode == 0 && !runRes.TimedOut,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.WallTimeMs,
		TimedOut: runRes.TimedOut,
	}
	r.metrics.ObserveCompile(ctx, req.Language.ID, compileRes.OK, compileRes.TimeMs)
	if err != nil {
		compileRes.Error = err.Error()
		return compileRes, appErr.Wrapf(err, appErr.JudgeSystemError, "run compiler failed")
	}
	if !compileRes.OK {
		compileRes.Error = compileDiagnostics(runRes)
	}
	return compileRes, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error) {
	if req.WorkDir == "" {
		return result.TestcaseResult{}, appErr.ValidationError("work_dir", "required")
	}
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language, req.WorkDir)
	if err != nil {
		return result.TestcaseResult{}, err
	}
	limits := applyLimits(req.Limits, req.Language)

	runRes, err := r.eng.Run(ctx, spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      req.WorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		Stdin:        req.Stdin,
		Limits:       limits,
	})
	if err != nil {
		r.metrics.ObserveRun(ctx, req.Language.ID, string(result.VerdictSE), runRes.TimeMs, runRes.MemoryKB)
		return result.TestcaseResult{TestID: req.TestID, Verdict: result.VerdictSE},
			appErr.Wrapf(err, appErr.JudgeSystemError, "run program failed")
	}

	verdict := mapRunVerdict(runRes)
	r.metrics.ObserveRun(ctx, req.Language.ID, string(verdict), runRes.TimeMs, runRes.MemoryKB)
	return result.TestcaseResult{
		TestID:         req.TestID,
		Verdict:        verdict,
		ExitCode:       runRes.ExitCode,
		TimeMs:         runRes.TimeMs,
		WallTimeMs:     runRes.WallTimeMs,
		MemoryKB:       runRes.MemoryKB,
		Stdout:         runRes.Stdout,
		Stderr:         runRes.Stderr,
		TimedOut:       runRes.TimedOut,
		OutputExceeded: runRes.OutputExceeded,
	}, nil
}

func buildCommand(tpl string, lang profile.LanguageSpec, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := tpl
	expanded = strings.ReplaceAll(expanded, "{src}", filepath.Join(workDir, lang.SourceFile))
	expanded = strings.ReplaceAll(expanded, "{bin}", filepath.Join(workDir, lang.BinaryFile))
	expanded = strings.ReplaceAll(expanded, "{dir}", workDir)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func applyLimits(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	if limits.MemoryMB == 0 {
		limits.MemoryMB = lang.MemoryLimitMB
	}
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func mapRunVerdict(res result.RunResult) result.Verdict {
	if res.TimedOut {
		return result.VerdictTLE
	}
	// The capped buffer kills the group on overflow, so check it before the exit code.
	if res.OutputExceeded {
		return result.VerdictOLE
	}
	if res.ExitCode != 0 {
		return result.VerdictRE
	}
	return result.VerdictAC
}

func compileDiagnostics(res result.RunResult) string {
	if res.TimedOut {
		return "compilation timed out"
	}
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	return msg
}
