package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"codeblack/internal/judge/sandbox/profile"
	"codeblack/internal/judge/sandbox/result"
	"codeblack/internal/judge/sandbox/runner"
	"codeblack/internal/judge/sandbox/spec"
	appErr "codeblack/pkg/errors"
	"codeblack/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultCompileTimeout   = 10 * time.Second
	defaultOutputLimitBytes = 64 * 1024
	defaultTimeLimitMs      = 5000
)

// Worker is the sandbox scheduling unit.
// It compiles once per submission and runs the inputs serially.
type Worker struct {
	runner    runner.Runner
	languages *profile.Registry
	pool      *Pool
	cfg       Config
}

// NewWorker creates a new worker with required dependencies.
func NewWorker(r runner.Runner, languages *profile.Registry, cfg Config) (*Worker, error) {
	if r == nil || languages == nil {
		return nil, appErr.New(appErr.JudgeSystemError).WithMessage("worker dependencies are not initialized")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "codeblack-sandbox")
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = defaultCompileTimeout
	}
	if cfg.OutputLimitBytes <= 0 {
		cfg.OutputLimitBytes = defaultOutputLimitBytes
	}
	return &Worker{
		runner:    r,
		languages: languages,
		pool:      NewPool(cfg.PoolSize, cfg.QueueWait),
		cfg:       cfg,
	}, nil
}

// Supported reports whether the language can be executed.
func (w *Worker) Supported(language string) bool {
	return w.languages.Supported(language)
}

// Pool exposes the worker's concurrency bound.
func (w *Worker) Pool() *Pool {
	return w.pool
}

// Run executes code against a single stdin.
func (w *Worker) Run(ctx context.Context, language, code, stdin string, timeLimitMs int64) (ExecResult, error) {
	out, err := w.Execute(ctx, ExecuteRequest{
		Language:    language,
		Code:        code,
		Inputs:      []string{stdin},
		TimeLimitMs: timeLimitMs,
	})
	if err != nil {
		return ExecResult{}, err
	}
	if out.CompilationFailed() {
		return ExecResult{
			Stderr:           out.Compile.Error,
			ExitCode:         out.Compile.ExitCode,
			CompilationError: true,
		}, nil
	}
	tc := out.Tests[0]
	return ExecResult{
		Stdout:         tc.Stdout,
		Stderr:         tc.Stderr,
		ExitCode:       tc.ExitCode,
		TimedOut:       tc.TimedOut,
		OutputExceeded: tc.OutputExceeded,
	}, nil
}

// Execute compiles the code once and runs every input in order.
// The work directory is removed on every exit path.
func (w *Worker) Execute(ctx context.Context, req ExecuteRequest) (result.Execution, error) {
	if len(req.Inputs) == 0 {
		return result.Execution{}, appErr.ValidationError("inputs", "required")
	}
	lang, err := w.languages.Get(req.Language)
	if err != nil {
		return result.Execution{}, err
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	if req.TimeLimitMs <= 0 {
		req.TimeLimitMs = defaultTimeLimitMs
	}

	if err := w.pool.Acquire(ctx); err != nil {
		return result.Execution{}, err
	}
	defer w.pool.Release()

	execution := result.Execution{Language: lang.ID}

	if err := os.MkdirAll(w.cfg.WorkRoot, 0755); err != nil {
		return execution, appErr.Wrapf(err, appErr.JudgeSystemError, "create sandbox work root failed")
	}
	workDir, err := os.MkdirTemp(w.cfg.WorkRoot, req.SubmissionID+"-")
	if err != nil {
		return execution, appErr.Wrapf(err, appErr.JudgeSystemError, "create submission workdir failed")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove sandbox workdir failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	if err := os.WriteFile(filepath.Join(workDir, lang.SourceFile), []byte(req.Code), 0644); err != nil {
		return execution, appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
	}

	if lang.CompileEnabled {
		compileRes, err := w.runner.Compile(ctx, runner.CompileRequest{
			SubmissionID: req.SubmissionID,
			Language:     lang,
			WorkDir:      workDir,
			Limits: spec.ResourceLimit{
				WallTimeMs:  w.cfg.CompileTimeout.Milliseconds(),
				OutputBytes: w.cfg.OutputLimitBytes,
			},
		})
		execution.Compile = &compileRes
		if err != nil {
			return execution, err
		}
		if !compileRes.OK {
			return execution, nil
		}
	}

	limits := spec.ResourceLimit{
		CPUTimeMs:   req.TimeLimitMs,
		WallTimeMs:  req.TimeLimitMs,
		OutputBytes: w.cfg.OutputLimitBytes,
	}
	execution.Tests = make([]result.TestcaseResult, 0, len(req.Inputs))
	for i, input := range req.Inputs {
		tc, err := w.runner.Run(ctx, runner.RunRequest{
			SubmissionID: req.SubmissionID,
			TestID:       strconv.Itoa(i + 1),
			Language:     lang,
			WorkDir:      workDir,
			Stdin:        input,
			Limits:       limits,
		})
		if err != nil {
			return execution, err
		}
		execution.Tests = append(execution.Tests, tc)
	}
	return execution, nil
}
