// Package sandbox compiles and runs contest submissions on the local host.
package sandbox

import (
	"context"
	"time"

	"codeblack/internal/judge/sandbox/result"
)

// Executor is the entrypoint used by the evaluators.
type Executor interface {
	Run(ctx context.Context, language, code, stdin string, timeLimitMs int64) (ExecResult, error)
	Execute(ctx context.Context, req ExecuteRequest) (result.Execution, error)
	Supported(language string) bool
}

// Config controls the worker.
type Config struct {
	WorkRoot         string        `yaml:"workRoot"`
	PoolSize         int           `yaml:"poolSize"`
	QueueWait        time.Duration `yaml:"queueWait"`
	CompileTimeout   time.Duration `yaml:"compileTimeout"`
	OutputLimitBytes int64         `yaml:"outputLimitBytes"`
}

// ExecResult is the outcome of running code once against one input.
type ExecResult struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	TimedOut         bool
	CompilationError bool
	OutputExceeded   bool
}

// ExecuteRequest compiles Code once and feeds every input to the program.
type ExecuteRequest struct {
	SubmissionID string
	Language     string
	Code         string
	Inputs       []string
	TimeLimitMs  int64
}
