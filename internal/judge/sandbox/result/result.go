// Package result defines sandbox execution results and verdict mapping.
package result

// Verdict represents the outcome of one process run.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
	VerdictCE  Verdict = "CE"
	VerdictSE  Verdict = "SE"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode       int
	TimeMs         int64
	WallTimeMs     int64
	MemoryKB       int64
	Stdout         string
	Stderr         string
	TimedOut       bool
	OutputExceeded bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	TimedOut bool
	// Error holds the compiler diagnostics when OK is false.
	Error string
}

// TestcaseResult contains per-input execution outcomes.
type TestcaseResult struct {
	TestID         string
	Verdict        Verdict
	ExitCode       int
	TimeMs         int64
	WallTimeMs     int64
	MemoryKB       int64
	Stdout         string
	Stderr         string
	TimedOut       bool
	OutputExceeded bool
}

// Execution is the outcome of compiling once and running every input.
type Execution struct {
	Language string
	// Compile is nil for interpreted languages.
	Compile *CompileResult
	Tests   []TestcaseResult
}

// CompilationFailed reports whether the compile step rejected the source.
func (e Execution) CompilationFailed() bool {
	return e.Compile != nil && !e.Compile.OK
}
